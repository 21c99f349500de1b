// Package domain defines the entity records, result types, error taxonomy and
// storage contracts shared by the entitystore core and its callers.
package domain

import "time"

// Entity is the root record: a person-like profile identified by ID.
type Entity struct {
	ID        string    `json:"id"`
	Names     []Name    `json:"names"`
	Addresses []Address `json:"addresses"`
	Dates     []Date    `json:"dates"`
	Gender    string    `json:"gender,omitempty"`
	Deceased  bool      `json:"deceased"`
}

// Name holds one name variant of an entity.
type Name struct {
	FirstName  string `json:"firstName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	Surname    string `json:"surname,omitempty"`
}

// Address holds one postal address of an entity.
type Address struct {
	AddressLine string `json:"addressLine,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Date is a labelled calendar value such as a birth date.
type Date struct {
	DateType  string     `json:"dateType,omitempty"`
	DateValue *time.Time `json:"dateValue,omitempty"`
}

// DateTypeBirth labels birth dates.
const DateTypeBirth = "Birth"

// FullName joins the name parts with single spaces, keeping empty parts.
func (n Name) FullName() string {
	return n.FirstName + " " + n.MiddleName + " " + n.Surname
}

// Line joins the address parts with single spaces, keeping empty parts.
func (a Address) Line() string {
	return a.AddressLine + " " + a.City + " " + a.Country
}

// Clone returns a deep copy of the entity. A nil Addresses slice stays nil so
// an absent collection round-trips as absent.
func (e Entity) Clone() Entity {
	cp := e
	if e.Names != nil {
		cp.Names = append([]Name(nil), e.Names...)
	}
	if e.Addresses != nil {
		cp.Addresses = append([]Address(nil), e.Addresses...)
	}
	if e.Dates != nil {
		cp.Dates = make([]Date, len(e.Dates))
		for i, d := range e.Dates {
			cp.Dates[i] = d.clone()
		}
	}
	return cp
}

func (d Date) clone() Date {
	if d.DateValue != nil {
		v := *d.DateValue
		d.DateValue = &v
	}
	return d
}

// CloneEntities deep copies every entity in the slice.
func CloneEntities(in []Entity) []Entity {
	out := make([]Entity, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
