package propagation

import (
	"strings"

	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
)

var stageCodes = map[enums.PropagationStage]string{
	enums.StageCustomClearing: "CUSTOMS_CLEARING",
	enums.StageAtWarehouse:    "AT_WAREHOUSE",
	enums.StageInSortingArea:  "IN_SORTING_AREA",
}

// StatusCode maps a stage label to the logistics status code. Unknown labels
// are lower-cased with whitespace runs replaced by underscores.
func StatusCode(label string) string {
	if stage, err := enums.ParsePropagationStage(label); err == nil {
		return stageCodes[stage]
	}
	return strings.Join(strings.Fields(strings.ToLower(label)), "_")
}
