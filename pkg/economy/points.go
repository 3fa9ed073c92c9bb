package economy

// Points awarded to the village score per completed level.
const (
	housePointsPerLevel   = 2
	defaultPointsPerLevel = 10
)

// PointsForLevel returns the score a village earns when a building of the
// given kind completes one level. Houses score low; everything else scores
// the standard award. Computed server-side at completion so clients cannot
// inflate their score.
func PointsForLevel(kind string) int {
	if kind == KindHouse {
		return housePointsPerLevel
	}
	return defaultPointsPerLevel
}
