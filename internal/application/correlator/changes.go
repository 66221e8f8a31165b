package correlator

import (
	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// changeSet collects what one report touched, in first-touch order
type changeSet struct {
	rows    []int64
	rowSeen map[int64]bool
	keys    []entity.AttachmentKey
	keySeen map[entity.AttachmentKey]bool
	notes   []string
}

func newChangeSet() changeSet {
	return changeSet{
		rowSeen: make(map[int64]bool),
		keySeen: make(map[entity.AttachmentKey]bool),
	}
}

func (c *changeSet) row(id int64) {
	if !c.rowSeen[id] {
		c.rowSeen[id] = true
		c.rows = append(c.rows, id)
	}
}

func (c *changeSet) attachment(key entity.AttachmentKey) {
	if !c.keySeen[key] {
		c.keySeen[key] = true
		c.keys = append(c.keys, key)
	}
}

func (c *changeSet) notify(message string) {
	c.notes = append(c.notes, message)
}

func (c *changeSet) flush(obs port.Observer) {
	rows, keys, notes := c.rows, c.keys, c.notes
	*c = newChangeSet()

	for _, key := range keys {
		obs.OnAttachmentChanged(key)
	}
	for _, id := range rows {
		obs.OnRowChanged(id)
	}
	for _, note := range notes {
		obs.OnNotify(note)
	}
}
