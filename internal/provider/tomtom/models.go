package tomtom

// TomTom Search API response (fuzzy search).
type searchResponse struct {
	Summary struct {
		Query      string `json:"query"`
		NumResults int    `json:"numResults"`
	} `json:"summary"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Type     string  `json:"type"`
	Score    float64 `json:"score"`
	Address  address `json:"address"`
	Position latLon  `json:"position"`
}

type address struct {
	FreeformAddress    string `json:"freeformAddress"`
	CountrySubdivision string `json:"countrySubdivision"`
	CountryCode        string `json:"countryCode"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TomTom Routing API response (calculateRoute).
type routeResponse struct {
	FormatVersion string      `json:"formatVersion"`
	Routes        []routeItem `json:"routes"`
}

type routeItem struct {
	Summary  routeSummary   `json:"summary"`
	Legs     []routeLeg     `json:"legs"`
	Sections []routeSection `json:"sections"`
}

type routeSummary struct {
	LengthInMeters      int `json:"lengthInMeters"`
	TravelTimeInSeconds int `json:"travelTimeInSeconds"`
}

type routeLeg struct {
	Summary routeSummary `json:"summary"`
	Points  []point      `json:"points"`
}

type point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routeSection struct {
	StartPointIndex    int     `json:"startPointIndex"`
	EndPointIndex      int     `json:"endPointIndex"`
	SectionType        string  `json:"sectionType"`
	CountryCode        string  `json:"countryCode"`
	CountrySubdivision string  `json:"countrySubdivision"`
	LengthInMeters     float64 `json:"lengthInMeters"`
}

// TomTom error body. Routing uses detailedError, search uses errorText.
type errorResponse struct {
	FormatVersion string `json:"formatVersion"`
	Error         struct {
		Description string `json:"description"`
	} `json:"error"`
	DetailedError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"detailedError"`
	ErrorText string `json:"errorText"`
}

func (e *errorResponse) message() string {
	switch {
	case e.DetailedError.Message != "":
		return e.DetailedError.Message
	case e.Error.Description != "":
		return e.Error.Description
	default:
		return e.ErrorText
	}
}

const (
	detailedNoRouteFound   = "NO_ROUTE_FOUND"
	detailedMapMatching    = "MAP_MATCHING_FAILURE"
	detailedBadInput       = "BAD_INPUT"
	detailedComputeTimeout = "COMPUTE_TIME_LIMIT_EXCEEDED"
)
