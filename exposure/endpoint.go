package exposure

import "fmt"

// Endpoint is a toxicological response a contaminant can produce.
type Endpoint uint8

const (
	AcuteLethal Endpoint = iota
	ChronicLethal
	Movement
	Foraging
	Reproduction
	numEndpoints
)

var endpointNames = [numEndpoints]string{
	AcuteLethal:   "acute_lethal",
	ChronicLethal: "chronic_lethal",
	Movement:      "movement",
	Foraging:      "foraging",
	Reproduction:  "reproduction",
}

func (e Endpoint) String() string {
	if e < numEndpoints {
		return endpointNames[e]
	}
	return fmt.Sprintf("Endpoint(%d)", uint8(e))
}

// Impairment reports whether e is a sub-lethal endpoint with an impairment formula.
func (e Endpoint) Impairment() bool {
	return e == Movement || e == Foraging || e == Reproduction
}

// ParseEndpoint resolves an endpoint by its configuration name.
func ParseEndpoint(s string) (Endpoint, error) {
	for i, n := range endpointNames {
		if n == s {
			return Endpoint(i), nil
		}
	}
	return 0, fmt.Errorf("exposure: unknown endpoint %q", s)
}
