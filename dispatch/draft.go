package dispatch

import (
	"strings"
	"time"
)

// Draft is an in-progress task under construction by a single sender. One
// draft per sender; starting a new one overwrites the old.
type Draft struct {
	SenderID  int64               `json:"sender_id"`
	Values    map[FieldKey]string `json:"values"`
	Skipped   map[FieldKey]bool   `json:"skipped,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func NewDraft(senderID int64, now time.Time) *Draft {
	return &Draft{
		SenderID:  senderID,
		Values:    map[FieldKey]string{},
		Skipped:   map[FieldKey]bool{},
		CreatedAt: now.UTC(),
	}
}

func (d *Draft) filled(key FieldKey) bool {
	if d.Skipped[key] {
		return true
	}
	_, ok := d.Values[key]
	return ok
}

// NextField returns the first still-unset field in declaration order.
func (d *Draft) NextField() (FieldSpec, bool) {
	for _, f := range TaskFields {
		if !d.filled(f.Key) {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (d *Draft) Complete() bool {
	_, more := d.NextField()
	return !more
}

func (d *Draft) set(key FieldKey, value string) {
	if d.Values == nil {
		d.Values = map[FieldKey]string{}
	}
	d.Values[key] = value
}

func (d *Draft) skip(key FieldKey) {
	if d.Skipped == nil {
		d.Skipped = map[FieldKey]bool{}
	}
	d.Skipped[key] = true
}

// fields copies the collected values into a task field map. Skipped fields end
// up absent, which renders as "no attachment".
func (d *Draft) fields() map[FieldKey]string {
	out := make(map[FieldKey]string, len(d.Values))
	for k, v := range d.Values {
		out[k] = strings.TrimSpace(v)
	}
	return out
}
