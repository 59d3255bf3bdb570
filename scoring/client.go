package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// =============================================================================
// HTTP CLIENT - External prediction service
// =============================================================================
//
// Request  POST {endpoint}/predict
//   {"niveau_experience": 4, "disponibilite_hebdo": 35, "cout_horaire": 42.5,
//    "charge_affectee": 20, "competence_moyenne": 71.5}
// Response 200
//   {"cluster": 2, "predicted_score": 68.25}

type predictRequest struct {
	Experience   int     `json:"niveau_experience"`
	Availability int     `json:"disponibilite_hebdo"`
	HourlyCost   float64 `json:"cout_horaire"`
	CurrentLoad  int     `json:"charge_affectee"`
	AvgSkill     float64 `json:"competence_moyenne"`
}

type predictResponse struct {
	Cluster        int     `json:"cluster"`
	PredictedScore float64 `json:"predicted_score"`
}

// Client calls the prediction service. Consecutive failures open the
// breaker, after which calls fail fast until the breaker's timeout elapses.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewClient(endpoint string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scoring-client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scoring",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("circuit breaker state changed")
		},
	})

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
	}
}

func (c *Client) Score(ctx context.Context, a Attributes) (Result, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.predict(ctx, a)
	})
	if err != nil {
		return Result{}, fmt.Errorf("scoring: %w", err)
	}
	return out.(Result), nil
}

func (c *Client) predict(ctx context.Context, a Attributes) (Result, error) {
	cost, _ := a.HourlyCost.Float64()
	body, err := json.Marshal(predictRequest{
		Experience:   a.Experience,
		Availability: a.WeeklyAvailability,
		HourlyCost:   cost,
		CurrentLoad:  a.CurrentLoad,
		AvgSkill:     a.AvgSkill,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("predict returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Result{}, fmt.Errorf("decode predict response: %w", err)
	}
	return Result{Cluster: pr.Cluster, Score: clampScore(pr.PredictedScore)}, nil
}

// State reports the breaker state, for health output.
func (c *Client) State() string {
	return c.breaker.State().String()
}
