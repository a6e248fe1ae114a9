// Package archivetest runs an in-process stand-in for the SIMBAD TAP service,
// the Gaia data server, and the Gaia TAP async service. It is meant for tests
// and local demos only.
package archivetest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Fixture stars.
const (
	// PrimaryStar resolves to PrimaryID, which has DR2 epoch photometry.
	PrimaryStar = "NQ Dra"
	PrimaryID   = "2154100169676165120"
	PrimaryRows = 84

	// SecondaryStar resolves to SecondaryID, which only has DR1 data.
	SecondaryStar = "DR1 Only Star"
	SecondaryID   = "5284240582308398080"
	SecondaryRows = 144

	// BareStar resolves to BareID, which has no light curve in either release.
	BareStar = "No Curve Star"
	BareID   = "1111111111111111111"

	// UnknownStar is not known to the name service at all.
	UnknownStar = "gibberish"
)

// Request kinds counted by Archive.Count.
const (
	KindSimbad   = "simbad"
	KindDataLink = "datalink"
	KindSubmit   = "submit"
	KindPhase    = "phase"
	KindResults  = "results"
	KindAbort    = "abort"
)

// Archive is a fake of the three remote services on one httptest server.
// Fields may be changed between requests; access is synchronised.
type Archive struct {
	Server *httptest.Server

	mu sync.Mutex
	// crossIDs maps star names to the identifiers SIMBAD lists for them.
	crossIDs map[string][]string
	// dr2 and dr1 map source ids to CSV bodies.
	dr2 map[string]string
	dr1 map[string]string
	// status overrides the answer of a request kind with an HTTP error.
	status map[string]int
	// pendingPolls is how many phase checks report EXECUTING before COMPLETED.
	pendingPolls int
	// finalPhase is reported once pendingPolls are used up.
	finalPhase string

	jobs    map[string]*job
	nextJob int
	counts  map[string]int
}

type job struct {
	sourceID string
	polls    int
	aborted  bool
}

// New starts an Archive with the fixture stars loaded. The server is closed
// when the test ends.
func New(t testing.TB) *Archive {
	t.Helper()
	a := &Archive{
		crossIDs: map[string][]string{
			PrimaryStar: {
				"V* NQ Dra",
				"TIC 229747848",
				"Gaia DR2 " + PrimaryID,
				"2MASS J18240779+5557367",
				"Gaia DR3 " + PrimaryID,
			},
			SecondaryStar: {"Gaia DR1 " + SecondaryID, "Gaia DR2 " + SecondaryID},
			BareStar:      {"Gaia DR2 " + BareID},
		},
		dr2: map[string]string{
			PrimaryID: DR2CSV(PrimaryID, PrimaryRows),
		},
		dr1: map[string]string{
			SecondaryID: DR1CSV(SecondaryID, SecondaryRows),
		},
		status:     map[string]int{},
		finalPhase: "COMPLETED",
		jobs:       map[string]*job{},
		counts:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /simbad/sync", a.handleSimbad)
	mux.HandleFunc("GET /data-server/data", a.handleDataLink)
	mux.HandleFunc("POST /tap/async", a.handleSubmit)
	mux.HandleFunc("GET /tap/async/{job}/phase", a.handlePhase)
	mux.HandleFunc("POST /tap/async/{job}/phase", a.handleAbort)
	mux.HandleFunc("GET /tap/async/{job}/results/result", a.handleResults)

	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// SimbadURL is the SIMBAD TAP root.
func (a *Archive) SimbadURL() string { return a.Server.URL + "/simbad" }

// DataLinkURL is the Gaia data server root.
func (a *Archive) DataLinkURL() string { return a.Server.URL + "/data-server" }

// TAPURL is the Gaia TAP root.
func (a *Archive) TAPURL() string { return a.Server.URL + "/tap" }

// SetCrossIDs replaces the identifiers listed for name.
func (a *Archive) SetCrossIDs(name string, ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.crossIDs[name] = ids
}

// SetDR2 sets the DR2 CSV served for id; an empty body means no data.
func (a *Archive) SetDR2(id, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dr2[id] = body
}

// SetDR1 sets the DR1 CSV returned by jobs for id.
func (a *Archive) SetDR1(id, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dr1[id] = body
}

// FailWith makes every request of kind answer with status. Zero clears it.
func (a *Archive) FailWith(kind string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status == 0 {
		delete(a.status, kind)
		return
	}
	a.status[kind] = status
}

// SetJobScript makes async jobs report EXECUTING for pending polls and then
// phase. An empty phase never leaves EXECUTING.
func (a *Archive) SetJobScript(pending int, phase string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingPolls = pending
	a.finalPhase = phase
}

// Count returns how many requests of kind were served.
func (a *Archive) Count(kind string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[kind]
}

// Aborted reports whether any job received an abort request.
func (a *Archive) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, j := range a.jobs {
		if j.aborted {
			return true
		}
	}
	return false
}

// begin counts a request and reports whether it was answered with an
// injected failure.
func (a *Archive) begin(w http.ResponseWriter, kind string) bool {
	a.mu.Lock()
	a.counts[kind]++
	status := a.status[kind]
	a.mu.Unlock()

	if status != 0 {
		http.Error(w, "injected failure", status)
		return true
	}
	return false
}

var nameInQuery = regexp.MustCompile(`WHERE id1\.id = '((?:[^']|'')*)'`)

func (a *Archive) handleSimbad(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindSimbad) {
		return
	}
	m := nameInQuery.FindStringSubmatch(r.URL.Query().Get("QUERY"))
	if m == nil {
		http.Error(w, "unsupported query", http.StatusBadRequest)
		return
	}
	name := strings.ReplaceAll(m[1], "''", "'")

	a.mu.Lock()
	ids := a.crossIDs[name]
	a.mu.Unlock()

	data := make([][]string, 0, len(ids))
	for _, id := range ids {
		data = append(data, []string{id})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"metadata": []map[string]string{{"name": "id", "datatype": "char"}},
		"data":     data,
	})
}

func (a *Archive) handleDataLink(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindDataLink) {
		return
	}
	q := r.URL.Query()
	if q.Get("RETRIEVAL_TYPE") != "EPOCH_PHOTOMETRY" || q.Get("FORMAT") != "CSV" {
		http.Error(w, "unsupported retrieval", http.StatusBadRequest)
		return
	}
	id := strings.TrimPrefix(q.Get("ID"), "Gaia DR2 ")

	a.mu.Lock()
	body := a.dr2[id]
	a.mu.Unlock()

	// The real data server answers unknown sources with 200 and no content.
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(body))
}

var sourceInQuery = regexp.MustCompile(`source_id=(\d+)`)

func (a *Archive) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindSubmit) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m := sourceInQuery.FindStringSubmatch(r.PostForm.Get("QUERY"))
	if m == nil || r.PostForm.Get("PHASE") != "RUN" {
		http.Error(w, "unsupported job", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.nextJob++
	id := strconv.Itoa(a.nextJob)
	a.jobs[id] = &job{sourceID: m[1]}
	a.mu.Unlock()

	w.Header().Set("Location", "async/"+id)
	w.WriteHeader(http.StatusSeeOther)
}

func (a *Archive) lookupJob(w http.ResponseWriter, r *http.Request) *job {
	a.mu.Lock()
	j := a.jobs[r.PathValue("job")]
	a.mu.Unlock()
	if j == nil {
		http.NotFound(w, r)
	}
	return j
}

func (a *Archive) handlePhase(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindPhase) {
		return
	}
	j := a.lookupJob(w, r)
	if j == nil {
		return
	}

	a.mu.Lock()
	phase := "EXECUTING"
	switch {
	case j.aborted:
		phase = "ABORTED"
	case j.polls >= a.pendingPolls && a.finalPhase != "":
		phase = a.finalPhase
	}
	j.polls++
	a.mu.Unlock()

	_, _ = w.Write([]byte(phase))
}

func (a *Archive) handleAbort(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindAbort) {
		return
	}
	j := a.lookupJob(w, r)
	if j == nil {
		return
	}
	_ = r.ParseForm()
	if r.PostForm.Get("PHASE") == "ABORT" {
		a.mu.Lock()
		j.aborted = true
		a.mu.Unlock()
	}
	w.Header().Set("Location", "/tap/async/"+r.PathValue("job"))
	w.WriteHeader(http.StatusSeeOther)
}

func (a *Archive) handleResults(w http.ResponseWriter, r *http.Request) {
	if a.begin(w, KindResults) {
		return
	}
	j := a.lookupJob(w, r)
	if j == nil {
		return
	}

	a.mu.Lock()
	body, ok := a.dr1[j.sourceID]
	a.mu.Unlock()
	if !ok {
		body = DR1CSV(j.sourceID, 0)
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(body))
}

// DR2CSV builds an epoch photometry table for id with rows rows spread over
// the G, BP and RP bands.
func DR2CSV(id string, rows int) string {
	var b strings.Builder
	b.WriteString("solution_id,source_id,transit_id,band,time,mag,flux,flux_error,flux_over_error,rejected_by_photometry,rejected_by_variability,other_flags\n")
	bands := []string{"G", "BP", "RP"}
	for i := 0; i < rows; i++ {
		band := bands[i%len(bands)]
		t := 1700.0 + float64(i/len(bands))*1.3
		mag := 15.0 + 0.4*math.Sin(float64(i)/3) + float64(i%len(bands))*0.2
		flux := math.Pow(10, (25.0-mag)/2.5)
		fmt.Fprintf(&b, "369295551293819386,%s,%d,%s,%.6f,%.6f,%.3f,%.3f,%.3f,false,false,4097\n",
			id, 17000000000000000+i, band, t, mag, flux, flux/200, 200.0)
	}
	return b.String()
}

// DR1CSV builds a DR1 G-band time series for id with rows rows, in the
// column order of the DR1 query.
func DR1CSV(id string, rows int) string {
	var b strings.Builder
	b.WriteString("solution_id,source_id,observation_time,g_flux,g_flux_error,g_magnitude,g_magnitude_error,rejected\n")
	for i := 0; i < rows; i++ {
		t := 1666.0 + float64(i)*0.25
		mag := 18.0 + 0.5*math.Sin(float64(i)/5)
		flux := math.Pow(10, (25.5-mag)/2.5)
		fluxErr := flux / 150
		fmt.Fprintf(&b, "1635378410781933568,%s,%.6f,%.3f,%.3f,%.6f,%.6f,False\n",
			id, t, flux, fluxErr, mag, 2.5/math.Ln10*fluxErr/flux)
	}
	return b.String()
}
