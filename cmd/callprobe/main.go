package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type options struct {
	baseURL        string
	callSID        string
	from           string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	fetchAudio     bool
	verbose        bool
}

var defaultUtterances = []string{
	"Hello there",
	"What's a good book to read this summer?",
	"Can you keep it short?",
	"Thanks, that helps",
}

// twimlDoc is the subset of a webhook reply the probe inspects.
type twimlDoc struct {
	Play   []string `xml:"Play"`
	Say    []string `xml:"Say"`
	Gather []struct {
		Action string `xml:"action,attr"`
	} `xml:"Gather"`
}

type turnResult struct {
	Text        string
	Webhook     time.Duration
	AudioFetch  time.Duration
	AudioBytes  int
	Played      bool
	SpokenReply string
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(2)
	}
	results, err := run(context.Background(), &http.Client{Timeout: 30 * time.Second}, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, results)
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("callprobe", flag.ContinueOnError)
	var cfg options
	var textsRaw string
	var interTurnMS, turnTimeoutMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "phoneline base URL")
	fs.StringVar(&cfg.callSID, "call-sid", "", "CallSid for the simulated call (random when empty)")
	fs.StringVar(&cfg.from, "from", "+15555550100", "caller number sent with the webhooks")
	fs.IntVar(&cfg.turns, "turns", 4, "number of speech turns to simulate")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 250, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "per-request timeout in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.BoolVar(&cfg.fetchAudio, "fetch-audio", true, "download each played clip and time it")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print per-turn progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	if strings.TrimSpace(cfg.callSID) == "" {
		cfg.callSID = "CAprobe" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(ctx context.Context, client *http.Client, cfg options, out io.Writer) ([]turnResult, error) {
	start := time.Now()
	doc, err := postWebhook(ctx, client, cfg, "/voice", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("voice webhook: %w", err)
	}
	if cfg.verbose {
		mode := "say"
		if len(doc.Play) > 0 {
			mode = "play"
		}
		fmt.Fprintf(out, "callprobe: call=%s greeting=%s webhook_ms=%d\n", cfg.callSID, mode, time.Since(start).Milliseconds())
	}
	defer func() {
		_, _ = postWebhook(context.Background(), client, cfg, "/call-status", url.Values{"CallStatus": {"completed"}})
	}()

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		res, err := runTurn(ctx, client, cfg, text)
		if err != nil {
			return results, fmt.Errorf("turn %d: %w", i+1, err)
		}
		results = append(results, res)
		if cfg.verbose {
			fmt.Fprintf(out, "callprobe: turn %d/%d text=%q played=%v webhook_ms=%d audio_ms=%d bytes=%d\n",
				i+1, cfg.turns, text, res.Played, res.Webhook.Milliseconds(), res.AudioFetch.Milliseconds(), res.AudioBytes)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}
	return results, nil
}

func runTurn(ctx context.Context, client *http.Client, cfg options, text string) (turnResult, error) {
	res := turnResult{Text: text}
	start := time.Now()
	doc, err := postWebhook(ctx, client, cfg, "/process-speech", url.Values{"SpeechResult": {text}, "Confidence": {"0.92"}})
	res.Webhook = time.Since(start)
	if err != nil {
		return res, err
	}
	if len(doc.Gather) == 0 {
		return res, fmt.Errorf("reply has no Gather, the call would stall")
	}
	if len(doc.Play) == 0 {
		res.SpokenReply = strings.Join(doc.Say, " ")
		return res, nil
	}
	res.Played = true
	if !cfg.fetchAudio {
		return res, nil
	}

	start = time.Now()
	n, err := fetchAudio(ctx, client, cfg, doc.Play[0])
	res.AudioFetch = time.Since(start)
	res.AudioBytes = n
	return res, err
}

func postWebhook(ctx context.Context, client *http.Client, cfg options, path string, form url.Values) (twimlDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.turnTimeout)
	defer cancel()

	form.Set("CallSid", cfg.callSID)
	form.Set("From", cfg.from)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return twimlDoc{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := client.Do(req)
	if err != nil {
		return twimlDoc{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return twimlDoc{}, err
	}
	if res.StatusCode == http.StatusNoContent {
		return twimlDoc{}, nil
	}
	if res.StatusCode != http.StatusOK {
		return twimlDoc{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseTwiML(body)
}

func parseTwiML(body []byte) (twimlDoc, error) {
	var doc twimlDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return twimlDoc{}, fmt.Errorf("decode twiml: %w", err)
	}
	for i := range doc.Play {
		doc.Play[i] = strings.TrimSpace(doc.Play[i])
	}
	return doc, nil
}

func fetchAudio(ctx context.Context, client *http.Client, cfg options, audioURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.turnTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return 0, err
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	n, err := io.Copy(io.Discard, io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return int(n), err
	}
	if res.StatusCode != http.StatusOK {
		return int(n), fmt.Errorf("audio HTTP %d", res.StatusCode)
	}
	return int(n), nil
}

func printSummary(w io.Writer, results []turnResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "callprobe: no turns completed")
		return
	}
	webhook := make([]float64, 0, len(results))
	audio := make([]float64, 0, len(results))
	played := 0
	for _, r := range results {
		webhook = append(webhook, float64(r.Webhook.Microseconds())/1000)
		if r.Played {
			played++
			audio = append(audio, float64(r.AudioFetch.Microseconds())/1000)
		}
	}
	fmt.Fprintf(w, "callprobe: turns=%d played=%d said=%d\n", len(results), played, len(results)-played)
	fmt.Fprintf(w, "callprobe: webhook_ms p50=%.1f p95=%.1f max=%.1f\n", percentile(webhook, 0.50), percentile(webhook, 0.95), percentile(webhook, 1))
	if len(audio) > 0 {
		fmt.Fprintf(w, "callprobe: audio_ms p50=%.1f p95=%.1f max=%.1f\n", percentile(audio, 0.50), percentile(audio, 0.95), percentile(audio, 1))
	}
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(q*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
