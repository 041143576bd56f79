/*
samples.go - Sample source files for onboarding and demos

PURPOSE:
  Serves the sample price list, store directory and usage logs an operator
  can download as templates, and loads them into a session in one step.

AVAILABLE SAMPLES:
  prices:      10 items across 부자재, 택배, 행낭
  stores:      5 stores (GN01 .. SS01)
  usage-code:  Usage log referencing stores by 매장코드
  usage-name:  The same usage log referencing stores by 매장명

USAGE VIA API:
  GET  /api/samples                List samples
  GET  /api/samples/usage-code     Download one sample as CSV
  POST /api/samples/load           {"usage": "usage-name"}

NOTE:
  Loading replaces the session tables. The two usage samples describe the
  same consumption, so only one of them is loaded.

SEE ALSO:
  - handlers.go: Table and settlement handlers
  - session/session.go: Bundle loading
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// SAMPLE DEFINITIONS
// =============================================================================

type sample struct {
	SampleDTO
	Body string
}

const samplePrices = `품목명,단가,카테고리
비닐봉투(소),50,부자재
비닐봉투(대),100,부자재
박스(소),500,부자재
박스(중),800,부자재
박스(대),1200,부자재
테이프,300,부자재
에어캡,200,부자재
택배,3000,택배
택배(착불),3500,택배
행낭,1500,행낭
`

const sampleStores = `매장명,매장코드
강남점,GN01
서초점,SC01
역삼점,YS01
논현점,NH01
신사점,SS01
`

const sampleUsageByCode = `날짜,매장코드,품목명,수량
2024-11-01,GN01,비닐봉투(소),50
2024-11-01,GN01,비닐봉투(대),30
2024-11-01,GN01,택배,10
2024-11-01,GN01,행낭,5
2024-11-02,SC01,비닐봉투(소),40
2024-11-02,SC01,박스(소),15
2024-11-02,SC01,택배,8
2024-11-03,YS01,비닐봉투(대),25
2024-11-03,YS01,테이프,10
2024-11-03,YS01,행낭,3
`

const sampleUsageByName = `날짜,매장명,품목명,수량
2024-11-01,강남점,비닐봉투(소),50
2024-11-01,강남점,비닐봉투(대),30
2024-11-01,강남점,택배,10
2024-11-01,강남점,행낭,5
2024-11-02,서초점,비닐봉투(소),40
2024-11-02,서초점,박스(소),15
2024-11-02,서초점,택배,8
2024-11-03,역삼점,비닐봉투(대),25
2024-11-03,역삼점,테이프,10
2024-11-03,역삼점,행낭,3
`

var samples = []sample{
	{
		SampleDTO: SampleDTO{
			Name:        "prices",
			FileName:    "단가관리_샘플.csv",
			Table:       string(settlement.TablePrices),
			Description: "Price list with item name, unit price and category",
		},
		Body: samplePrices,
	},
	{
		SampleDTO: SampleDTO{
			Name:        "stores",
			FileName:    "매장관리_샘플.csv",
			Table:       string(settlement.TableStores),
			Description: "Store directory with store name and code",
		},
		Body: sampleStores,
	},
	{
		SampleDTO: SampleDTO{
			Name:        "usage-code",
			FileName:    "사용내역_샘플_매장코드.csv",
			Table:       string(settlement.TableUsage),
			Description: "Usage log referencing stores by code",
		},
		Body: sampleUsageByCode,
	},
	{
		SampleDTO: SampleDTO{
			Name:        "usage-name",
			FileName:    "사용내역_샘플_매장명.csv",
			Table:       string(settlement.TableUsage),
			Description: "Usage log referencing stores by name",
		},
		Body: sampleUsageByName,
	},
}

func findSample(name string) (sample, bool) {
	for _, s := range samples {
		if s.Name == name {
			return s, true
		}
	}
	return sample{}, false
}

// sampleSource returns the named sample as an ingest source.
func sampleSource(name string) (ingest.Source, bool) {
	s, ok := findSample(name)
	if !ok {
		return ingest.Source{}, false
	}
	return ingest.Source{Name: s.FileName, Data: []byte(s.Body)}, true
}

// =============================================================================
// SAMPLE HANDLERS
// =============================================================================

// ListSamples returns the available samples.
func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	dtos := make([]SampleDTO, len(samples))
	for i, s := range samples {
		dtos[i] = s.SampleDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSample downloads one sample as CSV.
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	s, ok := findSample(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Sample not found", nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": s.FileName}))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, s.Body)
}

// LoadSamples replaces the session tables with the sample bundle.
func (h *Handler) LoadSamples(w http.ResponseWriter, r *http.Request) {
	var req LoadSamplesRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.Usage == "" {
		req.Usage = "usage-code"
	}
	usage, ok := sampleSource(req.Usage)
	if !ok || req.Usage == "prices" || req.Usage == "stores" {
		writeError(w, http.StatusBadRequest, "Unknown usage sample", errors.New(req.Usage))
		return
	}
	prices, _ := sampleSource("prices")
	stores, _ := sampleSource("stores")

	s := sessionFrom(r.Context())
	reports, err := s.Load(r.Context(), session.Bundle{
		Prices: prices,
		Stores: stores,
		Usage:  []ingest.Source{usage},
	})
	if err != nil {
		h.fail(w, r, "Failed to load samples", err)
		return
	}
	tables, err := s.Tables(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to read tables", err)
		return
	}

	loggerFrom(r.Context()).Info("samples loaded", zap.String("usage", req.Usage))
	writeJSON(w, http.StatusOK, LoadSamplesResponse{Reports: reports, Counts: tables.Counts()})
}
