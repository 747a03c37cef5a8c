package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	json "github.com/goccy/go-json"
	"github.com/wcharczuk/go-chart/v2"
	"gopkg.in/guregu/null.v3"

	"immunocore/internal/blob"
	"immunocore/internal/core"
)

// Format names an export artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
)

// DefaultFormats is used when an export names none.
var DefaultFormats = []Format{FormatJSON, FormatCSV}

// ParseFormats resolves format names, dropping duplicates.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return append([]Format(nil), DefaultFormats...), nil
	}
	out := make([]Format, 0, len(names))
	seen := make(map[Format]struct{}, len(names))
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FormatCSV, FormatJSON, FormatPNG:
		default:
			return nil, fmt.Errorf("unsupported export format %q", name)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// Artifact is one rendered export file.
type Artifact struct {
	Name        string `json:"name"`
	Format      Format `json:"format"`
	ContentType string `json:"content_type"`
	Payload     []byte `json:"-"`
}

// Render encodes an analysis in the given format. CSV holds the
// per-population summary table, JSON the whole analysis and PNG a bar chart
// of responder and non-responder means.
func Render(format Format, analysis core.Analysis) (Artifact, error) {
	switch format {
	case FormatCSV:
		payload, err := summaryCSV(analysis)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Name: "summary.csv", Format: FormatCSV, ContentType: "text/csv", Payload: payload}, nil
	case FormatJSON:
		payload, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return Artifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return Artifact{Name: "analysis.json", Format: FormatJSON, ContentType: "application/json", Payload: payload}, nil
	case FormatPNG:
		payload, err := summaryChart(analysis)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Name: "summary.png", Format: FormatPNG, ContentType: "image/png", Payload: payload}, nil
	default:
		return Artifact{}, fmt.Errorf("unsupported export format %s", format)
	}
}

type summaryRow struct {
	Population  string `csv:"population"`
	NYes        int    `csv:"n_yes"`
	NNo         int    `csv:"n_no"`
	MeanYes     string `csv:"mean_yes"`
	MeanNo      string `csv:"mean_no"`
	MedianYes   string `csv:"median_yes"`
	MedianNo    string `csv:"median_no"`
	StdYes      string `csv:"std_yes"`
	StdNo       string `csv:"std_no"`
	PValue      string `csv:"p_value"`
	Significant bool   `csv:"significant"`
}

func summaryCSV(analysis core.Analysis) ([]byte, error) {
	rows := make([]summaryRow, 0, len(analysis.Summary))
	for _, g := range analysis.Summary {
		rows = append(rows, summaryRow{
			Population:  string(g.Population),
			NYes:        g.NYes,
			NNo:         g.NNo,
			MeanYes:     formatFloat(g.MeanYes),
			MeanNo:      formatFloat(g.MeanNo),
			MedianYes:   formatFloat(g.MedianYes),
			MedianNo:    formatFloat(g.MedianNo),
			StdYes:      formatFloat(g.StdYes),
			StdNo:       formatFloat(g.StdNo),
			PValue:      formatFloat(g.PValue),
			Significant: g.Significant,
		})
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(f null.Float) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'g', -1, 64)
}

const (
	chartBarWidth   = 40
	chartBarSpacing = 20
	chartMargin     = 160
)

func summaryChart(analysis core.Analysis) ([]byte, error) {
	bars := make([]chart.Value, 0, 2*len(analysis.Summary))
	top := 0.0
	for _, g := range analysis.Summary {
		for _, side := range []struct {
			label string
			mean  null.Float
		}{{"yes", g.MeanYes}, {"no", g.MeanNo}} {
			v := side.mean.ValueOrZero()
			top = math.Max(top, v)
			bars = append(bars, chart.Value{Label: string(g.Population) + " " + side.label, Value: v})
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("render chart: no populations selected")
	}
	if top == 0 {
		top = 1
	}
	graph := chart.BarChart{
		Title:      "Mean relative frequency by response",
		Width:      chartMargin + len(bars)*(chartBarWidth+chartBarSpacing),
		Height:     480,
		BarWidth:   chartBarWidth,
		BarSpacing: chartBarSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// StoredArtifact describes an artifact written to the blob store.
type StoredArtifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignedURLTTL bounds download links handed out for stored artifacts.
const SignedURLTTL = 15 * time.Minute

// WriteArtifacts renders each format and writes it under prefix/. Backends that can
// sign URLs get a download link recorded on the artifact.
func WriteArtifacts(ctx context.Context, store blob.Store, prefix string, analysis core.Analysis, formats []Format) ([]StoredArtifact, error) {
	out := make([]StoredArtifact, 0, len(formats))
	for _, f := range formats {
		art, err := Render(f, analysis)
		if err != nil {
			return nil, err
		}
		key := prefix + "/" + art.Name
		info, err := store.Put(ctx, key, bytes.NewReader(art.Payload), blob.PutOptions{
			ContentType: art.ContentType,
			Metadata: map[string]string{
				"filter":       analysis.Filter,
				"sample_count": strconv.Itoa(analysis.SampleCount),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		stored := StoredArtifact{
			Key:         info.Key,
			Format:      f,
			ContentType: art.ContentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   info.LastModified,
		}
		if signer, ok := store.(blob.URLSigner); ok {
			if u, err := signer.SignedURL(ctx, info.Key, SignedURLTTL); err == nil {
				stored.URL = u
			}
		}
		out = append(out, stored)
	}
	return out, nil
}
