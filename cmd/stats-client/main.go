package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"com.aviebrantz.statistics/pkg/core/stats"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
)

type options struct {
	addr       string
	prefix     string
	resource   string
	kind       string
	id         string
	from       string
	to         string
	resolution string
	timezone   string
	timeout    time.Duration
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("stats-client", flag.ContinueOnError)
	fs.StringVar(&o.addr, "addr", "http://localhost:8080", "statistics API address")
	fs.StringVar(&o.prefix, "prefix", "/statistics", "API path prefix")
	fs.StringVar(&o.resource, "type", "episode", "resource type: episode, series or organization")
	fs.StringVar(&o.kind, "kind", stats.KindViews, "statistic kind")
	fs.StringVar(&o.id, "id", "", "resource id")
	fs.StringVar(&o.from, "from", "", "range start (RFC 3339 or date), defaults to 7 days ago")
	fs.StringVar(&o.to, "to", "", "range end (RFC 3339 or date), defaults to now")
	fs.StringVar(&o.resolution, "resolution", "daily", "hourly, daily, weekly, monthly or yearly")
	fs.StringVar(&o.timezone, "timezone", "", "IANA timezone for bucket boundaries")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.id == "" {
		return nil, fmt.Errorf("-id is required")
	}
	return o, nil
}

func (o *options) url(now time.Time) string {
	from, to := o.from, o.to
	if to == "" {
		to = now.UTC().Format(time.RFC3339)
	}
	if from == "" {
		from = now.AddDate(0, 0, -7).UTC().Format(time.RFC3339)
	}
	params := url.Values{
		"from":       {from},
		"to":         {to},
		"resolution": {o.resolution},
	}
	if o.timezone != "" {
		params.Set("timezone", o.timezone)
	}

	path := "/" + url.PathEscape(o.resource) + "/" + url.PathEscape(o.kind) + "/" + url.PathEscape(o.id)
	if strings.EqualFold(o.kind, stats.KindViews) {
		path = "/views/" + url.PathEscape(o.resource) + "/" + url.PathEscape(o.id)
	}
	return strings.TrimSuffix(o.addr, "/") + "/" + strings.Trim(o.prefix, "/") + path + "?" + params.Encode()
}

func fetch(ctx context.Context, target string) (*stats.TimeSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return nil, fmt.Errorf("%s: %s", resp.Status, failure.Message)
	}
	series := &stats.TimeSeries{}
	if err := json.NewDecoder(resp.Body).Decode(series); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return series, nil
}

func print(w io.Writer, series *stats.TimeSeries) error {
	if len(series.Labels) != len(series.Values) {
		return fmt.Errorf("%d labels for %d values", len(series.Labels), len(series.Values))
	}
	for i, label := range series.Labels {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", label, strconv.FormatFloat(series.Values[i], 'f', -1, 64)); err != nil {
			return err
		}
	}
	if series.Total != nil {
		_, err := fmt.Fprintf(w, "total\t%s\n", strconv.FormatFloat(*series.Total, 'f', -1, 64))
		return err
	}
	return nil
}

func run(args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	target := o.url(time.Now())
	log.Debugf("GET %s", target)
	series, err := fetch(ctx, target)
	if err != nil {
		return err
	}
	return print(out, series)
}

func main() {
	log.SetHandler(cli.New(os.Stderr))
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error fetching statistics: %v", err)
	}
}
