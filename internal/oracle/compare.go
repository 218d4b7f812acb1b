package oracle

import (
	"fmt"
	"strconv"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// Difference is one disagreement between two snapshots. Constraint is
// empty for the total score.
type Difference struct {
	Constraint string `json:"constraint,omitempty"`
	Field      string `json:"field"`
	Got        string `json:"got"`
	Want       string `json:"want"`
}

func (d Difference) String() string {
	if d.Constraint == "" {
		return fmt.Sprintf("%s: got %s, want %s", d.Field, d.Got, d.Want)
	}
	return fmt.Sprintf("%s %s: got %s, want %s", d.Constraint, d.Field, d.Got, d.Want)
}

// Compare reports where got disagrees with want: the total, each
// constraint's count and contribution, and constraints present in only
// one of them. Decimals compare by value, so 50 equals 50.000.
func Compare(got, want *score.Snapshot) []Difference {
	var diffs []Difference
	if got.Total.Cmp(&want.Total) != 0 {
		diffs = append(diffs, Difference{
			Field: "score",
			Got:   ir.FormatDecimal(&got.Total),
			Want:  ir.FormatDecimal(&want.Total),
		})
	}

	i, j := 0, 0
	for i < len(got.Constraints) || j < len(want.Constraints) {
		switch {
		case j == len(want.Constraints) || (i < len(got.Constraints) && got.Constraints[i].Name < want.Constraints[j].Name):
			diffs = append(diffs, Difference{Constraint: got.Constraints[i].Name, Field: "presence", Got: "present", Want: "absent"})
			i++
		case i == len(got.Constraints) || got.Constraints[i].Name > want.Constraints[j].Name:
			diffs = append(diffs, Difference{Constraint: want.Constraints[j].Name, Field: "presence", Got: "absent", Want: "present"})
			j++
		default:
			g, w := &got.Constraints[i], &want.Constraints[j]
			if g.Count != w.Count {
				diffs = append(diffs, Difference{
					Constraint: g.Name,
					Field:      "count",
					Got:        strconv.FormatInt(g.Count, 10),
					Want:       strconv.FormatInt(w.Count, 10),
				})
			}
			if g.Contribution.Cmp(&w.Contribution) != 0 {
				diffs = append(diffs, Difference{
					Constraint: g.Name,
					Field:      "contribution",
					Got:        ir.FormatDecimal(&g.Contribution),
					Want:       ir.FormatDecimal(&w.Contribution),
				})
			}
			i++
			j++
		}
	}
	return diffs
}
