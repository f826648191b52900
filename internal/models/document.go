package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Document is one immutable, denormalized dataset version as stored by the
// document store. Cross-document links live inside Body as EntityRefs; there
// are no relational foreign keys between versions.
type Document struct {
	ID        string     `db:"id" json:"id"`
	Version   Version    `db:"version" json:"version"`
	Type      EntityType `db:"type" json:"type"`
	Name      string     `db:"name" json:"name"`
	Body      []byte     `db:"body" json:"body,omitempty"`
	StateCode int        `db:"state_code" json:"state_code"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// DecodeBody unmarshals the stored body.
func (d *Document) DecodeBody() (*DocumentBody, error) {
	body := &DocumentBody{}
	if len(d.Body) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(d.Body, body); err != nil {
		return nil, fmt.Errorf("decode %s %s body: %w", d.Type, d.ID, err)
	}
	return body, nil
}

// DocumentBody holds the denormalized payload. Only the fields relevant to
// the document's type are populated; the rest stay empty.
type DocumentBody struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Flows declare their reference flow property together with the mean
	// conversion value carried along the resolution chain.
	ReferenceFlowProperty *FlowPropertyRef `json:"referenceFlowProperty,omitempty"`

	// Flow properties point at the unit group defining their units.
	UnitGroup *EntityRef `json:"unitGroup,omitempty"`

	// Unit groups declare their reference unit and its conversion factor.
	ReferenceUnit *UnitFactorRef `json:"referenceUnit,omitempty"`

	// Units carry a display symbol.
	Symbol string `json:"symbol,omitempty"`

	// Processes (and other composite types) embed additional references to
	// flows, sources and contacts.
	References []EntityRef `json:"references,omitempty"`
}

// FlowPropertyRef is an EntityRef enriched with the mean conversion value the
// flow declares for that property.
type FlowPropertyRef struct {
	EntityRef
	MeanValue float64 `json:"meanValue"`
}

// UnitFactorRef is an EntityRef enriched with the unit's conversion factor
// relative to the group's reference unit.
type UnitFactorRef struct {
	EntityRef
	ConversionFactor float64 `json:"conversionFactor"`
}

// Value implements driver.Valuer so Version binds as its padded string form.
func (v Version) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan implements sql.Scanner accepting the padded string form.
func (v *Version) Scan(src interface{}) error {
	switch val := src.(type) {
	case nil:
		*v = Version{}
		return nil
	case string:
		parsed, err := ParseVersion(val)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	case []byte:
		parsed, err := ParseVersion(string(val))
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Version", src)
}
