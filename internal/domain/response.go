package domain

import "encoding/json"

// CombinedResponse is the payload served by GET /data.
//
// HistoricalBalloons is nil when the deployment requests no historical
// offsets; the key is then left out of the JSON entirely. A non-nil empty
// slice is still written as [].
type CombinedResponse struct {
	Weather            Value
	Balloons           []BalloonRecord
	HistoricalBalloons []BalloonRecord
}

type combinedJSON struct {
	Weather            Value            `json:"weather"`
	Balloons           []BalloonRecord  `json:"balloons"`
	HistoricalBalloons *[]BalloonRecord `json:"historical_balloons,omitempty"`
}

func (r CombinedResponse) MarshalJSON() ([]byte, error) {
	out := combinedJSON{Weather: r.Weather, Balloons: r.Balloons}
	if out.Balloons == nil {
		out.Balloons = []BalloonRecord{}
	}
	if r.HistoricalBalloons != nil {
		out.HistoricalBalloons = &r.HistoricalBalloons
	}
	return json.Marshal(out)
}

// BalloonCount is the number of current plus historical records.
func (r CombinedResponse) BalloonCount() int {
	return len(r.Balloons) + len(r.HistoricalBalloons)
}
