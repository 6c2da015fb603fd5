package kub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://www.kub.org/api"

const (
	dateFormat = "2006-01-02"
	timeFormat = "15:04:05"
)

// Client talks to the KUB customer API. Credentials live for the lifetime of
// the client; the resolved account is cached after the first successful
// resolution. Sessions are scoped to a single retrieve call and never reused.
type Client struct {
	// BaseURL may be overridden for testing.
	BaseURL string

	username string
	password string

	// account is nil until the profile has been resolved once.
	account *Account
}

// New creates a client for the given KUB credentials.
func New(username, password string) *Client {
	return &Client{
		BaseURL:  defaultBaseURL,
		username: username,
		password: password,
	}
}

// Account returns the cached account identifiers, or nil if resolution has
// not happened yet.
func (c *Client) Account() *Account {
	return c.account
}

type sessionPayload struct {
	Session struct {
		Username       string  `json:"username"`
		Password       string  `json:"password"`
		ExpirationDate *string `json:"expirationDate"`
		User           *string `json:"user"`
	} `json:"session"`
}

// authenticate exchanges credentials for a server-side session. The session
// is identified by the cookies the transport now holds.
func (c *Client) authenticate(ctx context.Context, s *session) error {
	var payload sessionPayload
	payload.Session.Username = c.username
	payload.Session.Password = c.password

	status, err := s.post(ctx, c.BaseURL+"/auth/v1/sessions", payload)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if status == http.StatusUnauthorized {
		return &AuthError{
			StatusCode: status,
			Message:    "authentication failed: invalid username or password",
		}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("session endpoint returned status %d", status)
	}

	s.started = time.Now()
	return nil
}

// resolveAccount fetches the user profile to obtain the person and account
// identifiers. Resolution is idempotent: once the account id is known the
// profile fetch is skipped. Service points are always re-resolved since the
// provisioned service list can change.
func (c *Client) resolveAccount(ctx context.Context, s *session) ([]ServicePoint, []UtilityType, error) {
	if c.account == nil {
		var profile struct {
			Person []struct {
				ID       string   `json:"id"`
				Accounts []string `json:"accounts"`
			} `json:"person"`
		}
		if err := s.get(ctx, c.BaseURL+"/auth/v1/users/"+url.PathEscape(c.username), &profile); err != nil {
			return nil, nil, fmt.Errorf("fetching user profile: %w", err)
		}
		if len(profile.Person) == 0 || len(profile.Person[0].Accounts) == 0 {
			return nil, nil, fmt.Errorf("user profile has no associated account")
		}
		c.account = &Account{
			PersonID:  profile.Person[0].ID,
			AccountID: profile.Person[0].Accounts[0],
		}
	}
	return c.resolveServices(ctx, s)
}

// resolveServices enumerates the account's service points and classifies
// each by its type code. An unknown code fails the whole resolution; the
// cached service-point map is only replaced on success.
func (c *Client) resolveServices(ctx context.Context, s *session) ([]ServicePoint, []UtilityType, error) {
	var body struct {
		ServicePoints []ServicePoint `json:"service-point"`
	}
	reqURL := c.BaseURL + "/cis/v1/accounts/" + url.PathEscape(c.account.AccountID) + "?include=all"
	if err := s.get(ctx, reqURL, &body); err != nil {
		return nil, nil, fmt.Errorf("fetching service points: %w", err)
	}

	points := make(map[UtilityType]string)
	var serviceList []UtilityType
	for _, sp := range body.ServicePoints {
		utilities, err := classifyServicePoint(sp)
		if err != nil {
			return nil, nil, err
		}
		for _, u := range utilities {
			points[u] = sp.ID
			serviceList = append(serviceList, u)
		}
	}

	c.account.ServicePoints = points
	return body.ServicePoints, serviceList, nil
}

// classifyServicePoint maps a provider type code to the utilities it serves.
// A combined water/sewer point serves both water and wastewater through the
// same meter.
func classifyServicePoint(sp ServicePoint) ([]UtilityType, error) {
	switch sp.Type {
	case "E-RES":
		return []UtilityType{Electricity}, nil
	case "G-RES":
		return []UtilityType{Gas}, nil
	case "W/S-RES":
		return []UtilityType{Water, Wastewater}, nil
	default:
		return nil, &UnexpectedServiceError{TypeCode: sp.Type, ServicePointID: sp.ID}
	}
}

type usageValue struct {
	ID           json.Number       `json:"id"`
	ReadDateTime string            `json:"readDateTime"`
	Children     []json.RawMessage `json:"usageValuesChildren"`
}

type usageAggregate struct {
	ReadValue float64 `json:"readValue"`
	UOM       string  `json:"uom"`
	Cost      float64 `json:"cost"`
}

// fetchUsage retrieves usage for one utility over the date range and merges
// it into the snapshot. Wastewater is never fetched: it mirrors water's
// already-fetched series and totals, so water must be populated first.
func (c *Client) fetchUsage(ctx context.Context, s *session, snap *Snapshot, utility UtilityType, startDate, endDate string) error {
	if utility == Wastewater {
		return deriveWastewater(snap)
	}

	servicePoint, ok := c.account.ServicePoints[utility]
	if !ok {
		return fmt.Errorf("no service point resolved for %s", utility)
	}

	params := url.Values{}
	params.Set("startDate", startDate)
	params.Set("endDate", endDate)
	params.Set("personId", c.account.PersonID)
	params.Set("servicePointId", servicePoint)
	params.Set("utilityType", utility.Code())

	var body struct {
		UsageValues     []usageValue     `json:"usage-value"`
		UsageAggregates []usageAggregate `json:"usage-aggregate"`
	}
	if err := s.get(ctx, c.BaseURL+"/ami/v1/usage-values?"+params.Encode(), &body); err != nil {
		return fmt.Errorf("fetching %s usage: %w", utility, err)
	}

	series, total, err := reshapeUsage(body.UsageValues, body.UsageAggregates, time.Now())
	if err != nil {
		return fmt.Errorf("reshaping %s usage: %w", utility, err)
	}

	snap.Usage[utility] = series
	snap.MonthlyTotal[utility] = total
	return nil
}

// reshapeUsage turns the provider's parallel usage-value/usage-aggregate
// arrays into a day -> hour series. Entries with children are day markers
// that open a bucket; entries without children are hourly leaf samples whose
// reading lives in the aggregate array at the same index. Leaves are
// attributed to the most recently seen marker date.
//
// Monthly totals accumulate only leaves read in the current calendar month,
// so a window spanning a month boundary yields this month's portion only.
func reshapeUsage(values []usageValue, aggregates []usageAggregate, now time.Time) (map[string]map[string]UsageRecord, Total, error) {
	series := make(map[string]map[string]UsageRecord)
	var totalUsage, totalCost float64
	date := ""

	for idx, uv := range values {
		readAt, err := ParseReadTime(uv.ReadDateTime)
		if err != nil {
			return nil, Total{}, fmt.Errorf("parsing readDateTime %q at index %d: %w", uv.ReadDateTime, idx, err)
		}

		if len(uv.Children) > 0 {
			// Day marker: open the bucket, carry no reading.
			date = readAt.Format(dateFormat)
			if _, ok := series[date]; !ok {
				series[date] = make(map[string]UsageRecord)
			}
			continue
		}

		// Leaf sample. The provider is assumed to emit the day marker
		// before its children; fail loudly if that does not hold rather
		// than misattributing the record.
		if date == "" {
			return nil, Total{}, fmt.Errorf("usage record at index %d precedes any day marker", idx)
		}
		if idx >= len(aggregates) {
			return nil, Total{}, fmt.Errorf("no usage-aggregate entry for index %d", idx)
		}

		agg := aggregates[idx]
		series[date][readAt.Format(timeFormat)] = UsageRecord{
			ID:           uv.ID.String(),
			ReadDateTime: uv.ReadDateTime,
			UtilityUsed:  agg.ReadValue,
			UOM:          agg.UOM,
			Cost:         agg.Cost,
		}

		if readAt.Month() == now.Month() && readAt.Year() == now.Year() {
			totalUsage += agg.ReadValue
			totalCost += agg.Cost
		}
	}

	return series, Total{Usage: &totalUsage, Cost: &totalCost}, nil
}

// deriveWastewater copies water's series and totals into the wastewater
// slots. Properties with a separate wastewater meter are not handled; KUB
// bills wastewater off the water meter for residences without one.
func deriveWastewater(snap *Snapshot) error {
	water, ok := snap.Usage[Water]
	if !ok {
		return fmt.Errorf("wastewater requires water usage to be fetched first")
	}

	mirror := make(map[string]map[string]UsageRecord, len(water))
	for date, day := range water {
		hours := make(map[string]UsageRecord, len(day))
		for t, rec := range day {
			hours[t] = rec
		}
		mirror[date] = hours
	}
	snap.Usage[Wastewater] = mirror

	waterTotal := snap.MonthlyTotal[Water]
	total := Total{}
	if waterTotal.Usage != nil {
		v := *waterTotal.Usage
		total.Usage = &v
	}
	if waterTotal.Cost != nil {
		v := *waterTotal.Cost
		total.Cost = &v
	}
	snap.MonthlyTotal[Wastewater] = total
	return nil
}

// ParseReadTime parses a provider readDateTime, which is an ISO timestamp
// with no zone (local to the provider), occasionally with an offset.
func ParseReadTime(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// retrieve runs one full fetch cycle: authenticate, resolve the account and
// services, then fetch every provisioned utility sequentially. The session
// is closed on every exit path.
func (c *Client) retrieve(ctx context.Context, startDate, endDate string) (*Snapshot, error) {
	s, err := openSession()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := c.authenticate(ctx, s); err != nil {
		return nil, err
	}

	services, serviceList, err := c.resolveAccount(ctx, s)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot()
	snap.Services = services
	snap.ServiceList = serviceList

	for _, utility := range serviceList {
		if err := c.fetchUsage(ctx, s, snap, utility, startDate, endDate); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// RetrieveLast31Days fetches usage for the trailing 31 days. This is the
// range the statistics importer backfills from.
func (c *Client) RetrieveLast31Days(ctx context.Context) (*Snapshot, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -31)
	return c.retrieve(ctx, start.Format(dateFormat), end.Format(dateFormat))
}

// RetrieveMonthlyUsage fetches usage from the first of the current month
// through today.
func (c *Client) RetrieveMonthlyUsage(ctx context.Context) (*Snapshot, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return c.retrieve(ctx, start.Format(dateFormat), now.Format(dateFormat))
}

// RetrieveUsageByRange fetches usage between the given dates inclusive.
func (c *Client) RetrieveUsageByRange(ctx context.Context, start, end time.Time) (*Snapshot, error) {
	return c.retrieve(ctx, start.Format(dateFormat), end.Format(dateFormat))
}

// MonthlySummary fetches the current month and returns just the per-service
// totals.
func (c *Client) MonthlySummary(ctx context.Context) (MonthlyTotal, error) {
	snap, err := c.RetrieveMonthlyUsage(ctx)
	if err != nil {
		return nil, err
	}
	return snap.MonthlyTotal, nil
}

// AvailableServices authenticates and returns the raw service points
// provisioned for the account.
func (c *Client) AvailableServices(ctx context.Context) ([]ServicePoint, error) {
	s, err := openSession()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := c.authenticate(ctx, s); err != nil {
		return nil, err
	}
	services, _, err := c.resolveAccount(ctx, s)
	return services, err
}

// VerifyAccess checks that the credentials can establish a session.
func (c *Client) VerifyAccess(ctx context.Context) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return c.authenticate(ctx, s)
}
