package memory

import (
	"encoding/json"
	"time"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
)

// SeedFixtures returns a local data set relative to now: four fixtures inside
// a one hour window and two outside it.
func SeedFixtures(now time.Time) []fixture.Fixture {
	now = now.UTC()
	return []fixture.Fixture{
		{
			SportType: "football",
			MatchID:   "soc_ars_che_02042000",
			Data:      json.RawMessage(`{"home_team":"Arsenal","away_team":"Chelsea","competition":"Premier League","venue":"Emirates Stadium"}`),
			DateTime:  now.Add(30 * time.Minute),
		},
		{
			SportType: "basketball",
			MatchID:   "bas_lak_war_02042000",
			Data:      json.RawMessage(`{"home_team":"Lakers","away_team":"Warriors","competition":"NBA","venue":"Crypto.com Arena"}`),
			DateTime:  now.Add(45 * time.Minute),
		},
		{
			SportType: "tennis",
			MatchID:   "ten_djn_nar_02042000",
			Data:      json.RawMessage(`{"player1":"Djokovic","player2":"Nadal","competition":"Wimbledon","court":"Centre Court"}`),
			DateTime:  now.Add(15 * time.Minute),
		},
		{
			SportType: "cricket",
			MatchID:   "cri_eng_aus_02042000",
			Data:      json.RawMessage(`{"home_team":"England","away_team":"Australia","competition":"Ashes","venue":"Lords"}`),
			DateTime:  now.Add(20 * time.Minute),
		},
		{
			SportType: "football",
			MatchID:   "soc_man_liv_02042000",
			Data:      json.RawMessage(`{"home_team":"Manchester United","away_team":"Liverpool","competition":"Premier League","venue":"Old Trafford"}`),
			DateTime:  now.Add(2 * time.Hour),
		},
		{
			SportType: "basketball",
			MatchID:   "bas_cel_hea_02042000",
			Data:      json.RawMessage(`{"home_team":"Celtics","away_team":"Heat","competition":"NBA","venue":"TD Garden"}`),
			DateTime:  now.Add(-time.Hour),
		},
	}
}
