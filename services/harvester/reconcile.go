package harvester

import (
	"encoding/json"

	"stockharvest-backend/lib/record"
)

// bookkeeping field names inside a stored section payload
const (
	fieldPageCount     = "pageCount"
	fieldPagesFetched  = "pagesFetched"
	fieldNewItems      = "newItems"
	fieldExistingItems = "existingItems"
)

// SectionPayload renders a collection result into the stored payload shape:
// the merged item list under the section's result key (mirrored under each
// alias), followed by bookkeeping counters.
func SectionPayload(section Section, result SectionResult) *record.Record {
	items := make([]any, len(result.Items))
	for i, item := range result.Items {
		items[i] = item
	}

	payload := record.New()
	payload.Set(section.ResultKey, items)
	for _, alias := range section.Aliases {
		payload.Set(alias, items)
	}
	if result.PageCount > 0 {
		payload.Set(fieldPageCount, result.PageCount)
	}
	payload.Set(fieldPagesFetched, result.PagesFetched)
	payload.Set(fieldNewItems, result.NewItems)
	payload.Set(fieldExistingItems, result.PriorItems)
	return payload
}

// EmptySectionPayload is the placeholder stored when a section is skipped
// and has no prior payload to carry forward.
func EmptySectionPayload(section Section) *record.Record {
	payload := record.New()
	payload.Set(section.ResultKey, []any{})
	for _, alias := range section.Aliases {
		payload.Set(alias, []any{})
	}
	payload.Set(fieldPageCount, 0)
	payload.Set(fieldPagesFetched, 0)
	payload.Set(fieldNewItems, 0)
	payload.Set(fieldExistingItems, 0)
	return payload
}

// ExtractSectionItems pulls the previously stored item list for a section
// out of a persisted document, trying the result key first, then the
// aliases. Returns nil when the document has no usable list.
func ExtractSectionItems(doc *record.Record, section Section) []*record.Record {
	if doc == nil {
		return nil
	}
	raw, ok := doc.Get(section.Code)
	if !ok {
		return nil
	}
	payload, ok := raw.(*record.Record)
	if !ok {
		return nil
	}

	candidates := append([]string{section.ResultKey}, section.Aliases...)
	for _, key := range candidates {
		rawList, ok := payload.Get(key)
		if !ok {
			continue
		}
		list, ok := rawList.([]any)
		if !ok {
			continue
		}
		items := make([]*record.Record, 0, len(list))
		for _, entry := range list {
			if item, ok := entry.(*record.Record); ok {
				items = append(items, item)
			}
		}
		return items
	}
	return nil
}

// MergeDocument folds a freshly built document over the previously stored
// one. Field-level semantics: a fresh field replaces the old field of the
// same name wholesale, fields present only in the old document are carried
// forward after the fresh ones. Neither input is mutated.
func MergeDocument(old, fresh *record.Record) *record.Record {
	if fresh == nil {
		return old
	}
	if old == nil {
		return fresh
	}

	merged := record.New()
	for _, key := range fresh.Keys() {
		value, _ := fresh.Get(key)
		merged.Set(key, value)
	}
	for _, key := range old.Keys() {
		if _, ok := merged.Get(key); ok {
			continue
		}
		value, _ := old.Get(key)
		merged.Set(key, value)
	}
	return merged
}

// DecodeDocument parses a stored document JSON string.
func DecodeDocument(raw string) (*record.Record, error) {
	var doc record.Record
	err := json.Unmarshal([]byte(raw), &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// EncodeDocument renders a document for storage.
func EncodeDocument(doc *record.Record) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
