package base

// FieldSetExtractor extracts values from records by pre-defined set of identification keys
type FieldSetExtractor struct {
	keys           []string
	fieldSetBuffer []string
}

// NewFieldSetExtractor creates a FieldSetExtractor
//
// An extractor is NOT thread-safe and it should be created for each of goroutines extracting key values
func NewFieldSetExtractor(keys []string) *FieldSetExtractor {
	return &FieldSetExtractor{
		keys:           keys,
		fieldSetBuffer: make([]string, len(keys)),
	}
}

// Extract extracts field set from the given record and returns transient field values in key order
// Returned slices are only usable until next call. They MUST be copied for storing.
func (ex *FieldSetExtractor) Extract(record *Record) []string {
	transientFieldSet := ex.fieldSetBuffer
	for i, key := range ex.keys {
		transientFieldSet[i] = record.GetString(key)
	}
	return transientFieldSet
}
