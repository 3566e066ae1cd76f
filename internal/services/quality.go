package services

import "fmt"

// Quality selects which model class serves each pipeline phase.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityFastPro  Quality = "fast-pro"
	QualityExact    Quality = "exact"
	QualityExactPro Quality = "exact-pro"
)

// ModelSet holds the concrete model identifier for each phase.
type ModelSet struct {
	Parser string
	Solver string
	Action string
}

// qualityTable maps a quality profile to the model class per phase. true
// selects the large model.
var qualityTable = map[Quality]struct {
	parserLarge bool
	solverLarge bool
	actionLarge bool
}{
	QualityFast:     {false, false, false},
	QualityFastPro:  {true, false, true},
	QualityExact:    {false, true, false},
	QualityExactPro: {true, true, true},
}

// ParseQuality validates a quality string from the request payload.
func ParseQuality(s string) (Quality, error) {
	q := Quality(s)
	if _, ok := qualityTable[q]; !ok {
		return "", fmt.Errorf("invalid quality: %q", s)
	}
	return q, nil
}

// Models resolves a quality profile to concrete model identifiers.
func (q Quality) Models(smallModel, largeModel string) ModelSet {
	row := qualityTable[q]
	pick := func(large bool) string {
		if large {
			return largeModel
		}
		return smallModel
	}
	return ModelSet{
		Parser: pick(row.parserLarge),
		Solver: pick(row.solverLarge),
		Action: pick(row.actionLarge),
	}
}
