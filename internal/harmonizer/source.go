package harmonizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/breaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Source produces biometric readings.
type Source interface {
	Fetch(ctx context.Context) (Reading, error)
}

// Simulated produces plausible random readings for demos.
type Simulated struct {
	rnd *rand.Rand
}

// NewSimulated creates a simulated source seeded with seed.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{rnd: rand.New(rand.NewSource(seed))}
}

// Fetch returns HRV in [20, 80) ms, heart rate in [60, 100) bpm and sleep in
// [4, 8) hours.
func (s *Simulated) Fetch(ctx context.Context) (Reading, error) {
	return Reading{
		HRV:        20 + s.rnd.Float64()*60,
		HeartRate:  60 + s.rnd.Float64()*40,
		SleepHours: 4 + s.rnd.Float64()*4,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Oura reads sleep and readiness from the Oura v2 API.
type Oura struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	now        func() time.Time
}

// NewOura creates a client authenticating with a personal access token.
func NewOura(token string, logger *zap.Logger) *Oura {
	return &Oura{
		token:      token,
		baseURL:    "https://api.ouraring.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cb:         breaker.New("oura", logger),
		now:        time.Now,
	}
}

// SetBaseURL points the client at another host.
func (o *Oura) SetBaseURL(u string) {
	o.baseURL = strings.TrimRight(u, "/")
}

// Fetch reads last night's sleep duration and today's readiness score. The
// readiness score stands in for HRV. Heart rate is not available here.
func (o *Oura) Fetch(ctx context.Context) (Reading, error) {
	now := o.now().UTC()
	q := url.Values{}
	q.Set("start_date", now.AddDate(0, 0, -1).Format("2006-01-02"))
	q.Set("end_date", now.Format("2006-01-02"))

	var sleep struct {
		Data []struct {
			TotalSleepDuration float64 `json:"total_sleep_duration"`
		} `json:"data"`
	}
	if err := o.get(ctx, "/v2/usercollection/sleep", q, &sleep); err != nil {
		return Reading{}, err
	}

	var readiness struct {
		Data []struct {
			Score float64 `json:"score"`
		} `json:"data"`
	}
	if err := o.get(ctx, "/v2/usercollection/daily_readiness", q, &readiness); err != nil {
		return Reading{}, err
	}

	r := Reading{Timestamp: now}
	if len(sleep.Data) > 0 {
		r.SleepHours = sleep.Data[0].TotalSleepDuration / 3600
	}
	if len(readiness.Data) > 0 {
		r.HRV = readiness.Data[0].Score
	}
	return r, nil
}

func (o *Oura) get(ctx context.Context, path string, q url.Values, out any) error {
	if o.token == "" {
		return fmt.Errorf("oura token not configured")
	}
	u := o.baseURL + path + "?" + q.Encode()

	body, err := breaker.Do(o.cb, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+o.token)

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &breaker.StatusError{Service: "oura", Code: resp.StatusCode}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse oura response: %w", err)
	}
	return nil
}
