package analysis

import "math"

// Domain groups survey questions that are scored together.
type Domain struct {
	Name      string
	Questions []int
}

// Domains is the fixed partition of the 20 questions, in canonical order.
var Domains = []Domain{
	{Name: "Customer Contact", Questions: []int{1, 2, 3, 4}},
	{Name: "Operations", Questions: []int{5, 6, 7, 8}},
	{Name: "Business Models", Questions: []int{9, 10}},
	{Name: "Vision", Questions: []int{11, 12}},
	{Name: "Engagement", Questions: []int{13, 14, 15}},
	{Name: "Digital Governance", Questions: []int{16, 17, 18}},
	{Name: "Tech Leadership Capability", Questions: []int{19, 20}},
}

var (
	digitalQuestions    = questionRange(1, 10)
	leadershipQuestions = questionRange(11, 20)
)

func questionRange(from, to int) []int {
	ids := make([]int, 0, to-from+1)
	for q := from; q <= to; q++ {
		ids = append(ids, q)
	}
	return ids
}

// DomainFor returns the domain a question belongs to.
func DomainFor(questionID int) (string, bool) {
	for _, d := range Domains {
		for _, q := range d.Questions {
			if q == questionID {
				return d.Name, true
			}
		}
	}
	return "", false
}

// ScoreDomains averages the present answers of every domain.
func ScoreDomains(fv FeatureVector) DomainScores {
	out := make(DomainScores, 0, len(Domains))
	for _, d := range Domains {
		out = append(out, DomainScore{Domain: d.Name, Score: meanOf(fv, d.Questions)})
	}
	return out
}

// DigitalCapability is the mean of questions 1-10.
func DigitalCapability(fv FeatureVector) Score {
	return meanOf(fv, digitalQuestions)
}

// LeadershipCapability is the mean of questions 11-20.
func LeadershipCapability(fv FeatureVector) Score {
	return meanOf(fv, leadershipQuestions)
}

// meanOf skips missing members; with none present the result is Missing.
func meanOf(fv FeatureVector, questions []int) Score {
	sum, n := 0.0, 0
	for _, q := range questions {
		s := fv.Get(q)
		if !s.Valid || math.IsNaN(s.Float64) {
			continue
		}
		sum += s.Float64
		n++
	}
	if n == 0 {
		return Missing
	}
	return Present(Round2(sum / float64(n)))
}

// Round2 rounds half-to-even at two decimals.
func Round2(x float64) float64 {
	return math.RoundToEven(x*100) / 100
}
