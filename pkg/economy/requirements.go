package economy

import "fmt"

// Prerequisite for advanced town halls: the quarry must exist to supply stone.
const (
	townhallGateLevel  = 3 // town hall target level at which the gate applies
	requiredQuarryLvl  = 2
	requirementMessage = "townhall level %d requires a quarry at level %d or higher (currently %d)"
)

// CheckRequirements decides whether a village's current building levels
// satisfy the prerequisites for upgrading kind to targetLevel. The returned
// reason is human-readable and names the missing prerequisite; it is empty
// when the requirement is met.
//
// Levels must be live data at start time: prerequisites are never cached.
func CheckRequirements(levels map[string]int, kind string, targetLevel int) (ok bool, reason string) {
	if kind == KindTownhall && targetLevel >= townhallGateLevel {
		if lvl := levels[KindQuarry]; lvl < requiredQuarryLvl {
			return false, fmt.Sprintf(requirementMessage, targetLevel, requiredQuarryLvl, lvl)
		}
	}
	return true, ""
}
