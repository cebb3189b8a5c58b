package interestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://www.ustreasuryyieldcurve.com"
	// empty snapshots (weekends, holidays, missing data) are retried a
	// month earlier, this many times
	maxLookbackAttempts = 3
)

var yieldKeys = []string{
	"yield_1m",
	"yield_2m",
	"yield_3m",
	"yield_4m",
	"yield_6m",
	"yield_1y",
	"yield_2y",
	"yield_3y",
	"yield_5y",
	"yield_7y",
	"yield_10y",
	"yield_20y",
	"yield_30y",
}

func interestRateMonthsFromApi(in string) (int, error) {
	cleanedStr := strings.Replace(in, "yield_", "", 1)
	if len(cleanedStr) < 2 {
		return 0, fmt.Errorf("invalid yield key %q", in)
	}
	unit := string(cleanedStr[len(cleanedStr)-1])
	cleanedStr = cleanedStr[:len(cleanedStr)-1]
	months, err := strconv.Atoi(cleanedStr)
	if err != nil {
		return 0, err
	}

	if unit == "y" {
		months *= 12
	}

	return months, nil
}

// InterestRateMap is a yield curve keyed by months to maturity. Rates are
// fractions, not percent.
type InterestRateMap struct {
	Rates map[int]float64
}

// GetRate returns the rate for monthsOut, linearly interpolating between
// the nearest maturities and clamping to the ends of the curve.
func (im InterestRateMap) GetRate(monthsOut int) (float64, error) {
	if len(im.Rates) == 0 {
		return 0, fmt.Errorf("yield curve is empty")
	}
	if v, ok := im.Rates[monthsOut]; ok {
		return v, nil
	}

	keys := []int{}
	for k := range im.Rates {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	if monthsOut < keys[0] {
		return im.Rates[keys[0]], nil
	}
	if monthsOut > keys[len(keys)-1] {
		return im.Rates[keys[len(keys)-1]], nil
	}

	i := sort.SearchInts(keys, monthsOut)
	lo, hi := keys[i-1], keys[i]
	frac := float64(monthsOut-lo) / float64(hi-lo)
	return im.Rates[lo] + frac*(im.Rates[hi]-im.Rates[lo]), nil
}

type Client struct {
	BaseURL    string
	HttpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HttpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetYieldCurve fetches the treasury yield curve snapshot for date,
// stepping back a month at a time when the snapshot has no values.
func (c Client) GetYieldCurve(ctx context.Context, date time.Time) (*InterestRateMap, error) {
	for attempt := 0; attempt <= maxLookbackAttempts; attempt++ {
		out, err := c.getSnapshot(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(out.Rates) > 0 {
			return out, nil
		}
		date = date.AddDate(0, -1, 0)
	}
	return nil, fmt.Errorf("no yield curve data found near %s", date.Format(time.DateOnly))
}

func (c Client) getSnapshot(ctx context.Context, date time.Time) (*InterestRateMap, error) {
	tStr := date.Format(time.DateOnly)
	url := fmt.Sprintf("%s/api/v1/yield_curve_snapshot?date=%s&offset=0", c.BaseURL, tStr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	response, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("received status code %d and failed to read body: %w", response.StatusCode, err)
	}

	if response.StatusCode != 200 {
		return nil, fmt.Errorf("failed with status code %d: %s", response.StatusCode, string(responseBytes))
	}

	responseBody := []map[string]interface{}{}
	err = json.Unmarshal(responseBytes, &responseBody)
	if err != nil {
		return nil, err
	}

	out := map[int]float64{}
	for _, snapshot := range responseBody {
		for _, field := range yieldKeys {
			v, ok := snapshot[field].(float64)
			if !ok {
				continue
			}
			months, err := interestRateMonthsFromApi(field)
			if err != nil {
				return nil, err
			}
			out[months] = v / 100
		}
	}

	return &InterestRateMap{
		Rates: out,
	}, nil
}
