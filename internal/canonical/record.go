package canonical

import "time"

// Fields is the fixed set of canonical field names, in comparison order.
// Every Record carries all of them; absent values are nil, never omitted,
// so diffing over records is total.
var Fields = []string{"title", "version", "language", "content", "updated_at"}

// Record is the store-agnostic normalized view of a snapshot's payload.
type Record struct {
	Title     *string    `json:"title"`
	Version   *string    `json:"version"`
	Language  *string    `json:"language"`
	Content   *string    `json:"content"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Values renders the record as canonical field name → string value, with nil
// for absent fields. Timestamps are rendered RFC3339 in UTC so two stores
// holding the same instant in different zones compare equal.
func (r Record) Values() map[string]*string {
	vals := map[string]*string{
		"title":    r.Title,
		"version":  r.Version,
		"language": r.Language,
		"content":  r.Content,
	}
	if r.UpdatedAt != nil {
		s := r.UpdatedAt.UTC().Format(time.RFC3339)
		vals["updated_at"] = &s
	} else {
		vals["updated_at"] = nil
	}
	return vals
}
