package core

import (
	"time"
)

// EventKind names an entry in a batch's history.
type EventKind string

const (
	EventPlanted     EventKind = "planted"
	EventRescheduled EventKind = "rescheduled"
	EventHarvested   EventKind = "harvested"
	EventNote        EventKind = "note"
)

// Batch is the stored record of a plant batch, keyed by its batch identifier.
type Batch struct {
	ID              string     `db:"batch_id" json:"batchId" yaml:"batchId"`
	SystemID        string     `db:"system_id" json:"systemId,omitempty" yaml:"systemId,omitempty"`
	GrowBedID       *int64     `db:"grow_bed_id" json:"growBedId,omitempty" yaml:"growBedId,omitempty"`
	CropType        string     `db:"crop_type" json:"cropType" yaml:"cropType"`
	SeedVariety     string     `db:"seed_variety" json:"seedVariety,omitempty" yaml:"seedVariety,omitempty"`
	PlantCount      int        `db:"plant_count" json:"plantCount" yaml:"plantCount"`
	CreatedDate     string     `db:"batch_created_date" json:"batchCreatedDate" yaml:"batchCreatedDate"`
	DaysToHarvest   int        `db:"days_to_harvest" json:"daysToHarvest" yaml:"daysToHarvest"`
	Notes           *string    `db:"notes" json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt" yaml:"createdAt"`
	HarvestedAt     *time.Time `db:"harvested_at" json:"harvestedAt,omitempty" yaml:"harvestedAt,omitempty"`
	HarvestWeight   *float64   `db:"harvest_weight" json:"harvestWeight,omitempty" yaml:"harvestWeight,omitempty"`
	PlantsHarvested *int       `db:"plants_harvested" json:"plantsHarvested,omitempty" yaml:"plantsHarvested,omitempty"`
}

// Harvested reports whether the batch has been harvested.
func (b Batch) Harvested() bool { return b.HarvestedAt != nil }

// Event is a single append-only history record for a batch.
type Event struct {
	ID      int64     `db:"id" json:"id" yaml:"id"`
	UID     string    `db:"uid" json:"uid" yaml:"uid"`
	BatchID string    `db:"batch_id" json:"batchId" yaml:"batchId"`
	Kind    EventKind `db:"kind" json:"kind" yaml:"kind"`
	At      time.Time `db:"at" json:"at" yaml:"at"`
	Note    *string   `db:"note" json:"note,omitempty" yaml:"note,omitempty"`
}
