// Package feed reads the EDGAR monthly XBRL RSS feeds and the ticker list
// that selects which companies get processed.
package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/model"
)

const monthlyURL = "https://www.sec.gov/Archives/edgar/monthly/"

// FileName returns the file name of the monthly feed.
func FileName(year int, month time.Month) string {
	return fmt.Sprintf("xbrlrss-%d-%02d.xml", year, int(month))
}

// URL returns the download location of the monthly feed.
func URL(year int, month time.Month) string {
	return monthlyURL + FileName(year, month)
}

var exhibitRe = regexp.MustCompile(`^EX-(\d\d\D|100)`)

type rssItem struct {
	Link      string `xml:"link"`
	Enclosure *struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
	Filing *xbrlFiling `xml:"xbrlFiling"`
}

type xbrlFiling struct {
	CompanyName        string     `xml:"companyName"`
	FormType           string     `xml:"formType"`
	FilingDate         string     `xml:"filingDate"`
	CIKNumber          string     `xml:"cikNumber"`
	AccessionNumber    string     `xml:"accessionNumber"`
	FileNumber         string     `xml:"fileNumber"`
	AcceptanceDatetime string     `xml:"acceptanceDatetime"`
	Period             string     `xml:"period"`
	AssistantDirector  string     `xml:"assistantDirector"`
	AssignedSIC        string     `xml:"assignedSic"`
	OtherCIKNumbers    string     `xml:"otherCikNumbers"`
	FiscalYearEnd      string     `xml:"fiscalYearEnd"`
	Files              []xbrlFile `xml:"xbrlFiles>xbrlFile"`
}

type xbrlFile struct {
	URL         string `xml:"url,attr"`
	Type        string `xml:"type,attr"`
	InlineXBRL  string `xml:"inlineXBRL,attr"`
	Description string `xml:"description,attr"`
}

// Entry is one filing announced in a feed.
type Entry struct {
	model.Filing
	EnclosureLength int64
	// InstanceURLs lists every inline XBRL document of the filing; it is
	// empty for classic instances.
	InstanceURLs []string
	Exhibits     []string
}

// Read parses every item of a feed. Items without EDGAR metadata are skipped.
func Read(ctx context.Context, r io.Reader) ([]Entry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	itemCh, errCh := streamXML[rssItem](ctx, r, "item")

	var out []Entry
	for item := range itemCh {
		if item.Filing == nil {
			continue
		}
		e, err := item.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadFile parses the feed stored at path.
func ReadFile(ctx context.Context, path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	zap.L().Info("loading feed", zap.String("path", path))
	entries, err := Read(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read %s", path)
	}
	return entries, nil
}

func (it rssItem) entry() (Entry, error) {
	x := it.Filing
	e := Entry{Filing: model.Filing{
		AccessionNumber:   strings.TrimSpace(x.AccessionNumber),
		CompanyName:       strings.TrimSpace(x.CompanyName),
		FormType:          strings.TrimSpace(x.FormType),
		FileNumber:        strings.TrimSpace(x.FileNumber),
		AssistantDirector: strings.TrimSpace(x.AssistantDirector),
		OtherCIKNumbers:   strings.TrimSpace(x.OtherCIKNumbers),
	}}

	var err error
	if e.CIK, err = parseInt(x.CIKNumber); err != nil {
		return e, eris.Wrapf(err, "feed: cik of %s", e.AccessionNumber)
	}
	sic, err := parseInt(x.AssignedSIC)
	if err != nil {
		return e, eris.Wrapf(err, "feed: assigned sic of %s", e.AccessionNumber)
	}
	e.AssignedSIC = int(sic)
	fye, err := parseInt(x.FiscalYearEnd)
	if err != nil {
		return e, eris.Wrapf(err, "feed: fiscal year end of %s", e.AccessionNumber)
	}
	e.FiscalYearEnd = int(fye)

	if e.FilingDate, err = parseTime("01/02/2006", x.FilingDate); err != nil {
		return e, eris.Wrapf(err, "feed: filing date of %s", e.AccessionNumber)
	}
	if e.AcceptanceDatetime, err = parseTime("20060102150405", x.AcceptanceDatetime); err != nil {
		return e, eris.Wrapf(err, "feed: acceptance datetime of %s", e.AccessionNumber)
	}
	if e.Period, err = parseTime("20060102", x.Period); err != nil {
		return e, eris.Wrapf(err, "feed: period of %s", e.AccessionNumber)
	}

	if it.Enclosure != nil {
		e.EnclosureURL = it.Enclosure.URL
		e.EnclosureLength = it.Enclosure.Length
	} else if it.Link != "" {
		e.EnclosureURL = strings.Replace(strings.TrimSpace(it.Link), "index.htm", "xbrl.zip", 1)
	}

	for _, f := range x.Files {
		switch {
		case f.InlineXBRL == "1" || f.InlineXBRL == "true":
			if e.InstanceURL == "" {
				e.InstanceURL = f.URL
			}
			e.InstanceURLs = append(e.InstanceURLs, f.URL)
		case strings.HasSuffix(f.Type, ".INS") && strings.HasSuffix(f.URL, ".xml"):
			e.InstanceURL = f.URL
		case exhibitRe.MatchString(f.Type):
			e.Exhibits = append(e.Exhibits, f.URL)
		}
	}
	return e, nil
}

// InstanceFile returns the file name of the filing's instance document.
func (e *Entry) InstanceFile() string {
	if e.InstanceURL == "" {
		return ""
	}
	return path.Base(e.InstanceURL)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseTime(layout, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(layout, s)
}
