package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const maxUnstructuredEcho = 2000

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

type renderer func(gjson.Result) string

// renderers by the collection name a path ends in
var renderers = map[string]renderer{
	"allergies":     renderAllergy,
	"allergy":       renderAllergy,
	"prescriptions": renderPrescription,
	"prescription":  renderPrescription,
	"medications":   renderPrescription,
	"labs":          renderLab,
	"lab":           renderLab,
	"labresults":    renderLab,
	"imaging":       renderImaging,
	"familyhistory": renderFamily,
	"visits":        renderVisit,
	"visit":         renderVisit,
	"encounters":    renderVisit,
	"encounter":     renderVisit,
}

// QueryMedicalHistory looks up fieldPath in a structured medical record and
// renders what it finds as readable text. filter is an optional key=value
// criterion applied to list results. It never fails: every problem is
// described in the returned text so the interview can carry on.
func QueryMedicalHistory(record, fieldPath, filter string) string {
	record = strings.TrimSpace(record)
	if record == "" {
		return "No medical history is available for this patient."
	}
	if !strings.HasPrefix(record, "{") && !strings.HasPrefix(record, "[") {
		return "The medical history is unstructured text and cannot be queried by field. Full record: " + truncate(record, maxUnstructuredEcho)
	}
	if !gjson.Valid(record) {
		return "The medical history could not be parsed as structured data."
	}

	path := normalizePath(fieldPath)
	if path == "" {
		return "A field path is required, for example medicalHistory.allergies."
	}
	res := gjson.Get(record, path)
	if !res.Exists() && !strings.HasPrefix(path, "medicalHistory.") {
		path = "medicalHistory." + path
		res = gjson.Get(record, path)
	}
	if !res.Exists() || res.Type == gjson.Null {
		return fmt.Sprintf("No data found at %q in the medical history.", fieldPath)
	}

	filter = strings.TrimSpace(filter)
	if filter != "" {
		key, want, ok := strings.Cut(filter, "=")
		key, want = strings.TrimSpace(key), strings.TrimSpace(want)
		if !ok || key == "" {
			return fmt.Sprintf("Filter %q is not in key=value form.", filter)
		}
		if res.IsArray() {
			matched := filterItems(res, key, want)
			if len(matched) == 0 {
				return fmt.Sprintf("No entries at %q match %s.", fieldPath, filter)
			}
			return renderItems(matched, rendererFor(path))
		}
	}

	render := rendererFor(path)
	if res.IsArray() {
		items := res.Array()
		if len(items) == 0 {
			return fmt.Sprintf("No entries recorded at %q.", fieldPath)
		}
		return renderItems(items, render)
	}
	if res.IsObject() {
		return render(res)
	}
	return res.String()
}

// normalizePath turns "a.b[0].c" into the gjson form "a.b.0.c".
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = bracketIndex.ReplaceAllString(p, ".$1")
	p = strings.Trim(p, ".")
	return strings.ReplaceAll(p, "..", ".")
}

// rendererFor picks a renderer from the last non-index segment of path.
func rendererFor(path string) renderer {
	segs := strings.Split(path, ".")
	for i := len(segs) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(segs[i]); err == nil {
			continue
		}
		if r, ok := renderers[strings.ToLower(segs[i])]; ok {
			return r
		}
		break
	}
	return renderGeneric
}

func filterItems(list gjson.Result, key, want string) []gjson.Result {
	var out []gjson.Result
	want = strings.ToLower(want)
	for _, item := range list.Array() {
		v := item.Get(key)
		if v.Exists() && strings.Contains(strings.ToLower(v.String()), want) {
			out = append(out, item)
		}
	}
	return out
}

func renderItems(items []gjson.Result, render renderer) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsObject() {
			lines = append(lines, "- "+render(item))
		} else {
			lines = append(lines, "- "+item.String())
		}
	}
	return strings.Join(lines, "\n")
}

func renderAllergy(v gjson.Result) string {
	return join(", ",
		v.Get("name").String(),
		labelled("reaction", v.Get("reaction").String()),
		labelled("severity", v.Get("severity").String()),
		labelled("treatment", v.Get("treatment").String()),
		labelled("notes", v.Get("notes").String()),
	)
}

func renderPrescription(v gjson.Result) string {
	var meds []string
	v.Get("medication").ForEach(func(_, m gjson.Result) bool {
		if m.IsObject() {
			meds = append(meds, join(" ", m.Get("name").String(), m.Get("strength").String(), m.Get("dosageForm").String()))
		} else {
			meds = append(meds, m.String())
		}
		return true
	})
	if v.Get("medication").Type == gjson.String {
		meds = []string{v.Get("medication").String()}
	}
	if len(meds) == 0 {
		meds = append(meds, v.Get("name").String())
	}
	period := join(" ", labelled("from", v.Get("startDate").String()), labelled("to", v.Get("endDate").String()))
	return join(", ", strings.Join(meds, "; "), v.Get("instructions").String(), period)
}

func renderLab(v gjson.Result) string {
	head := join(": ", v.Get("testName").String(), v.Get("result").String())
	return join(", ", head,
		labelled("reference", v.Get("referenceRange").String()),
		labelled("on", v.Get("testDate").String()),
	)
}

func renderImaging(v gjson.Result) string {
	head := join(" of ", v.Get("type").String(), v.Get("bodyRegion").String())
	return join(", ", head,
		labelled("on", v.Get("studyDate").String()),
		labelled("at", v.Get("performingFacility").String()),
		labelled("impression", v.Get("report.impression").String()),
		labelled("notes", v.Get("notes").String()),
	)
}

func renderFamily(v gjson.Result) string {
	head := join(": ", v.Get("relation").String(), v.Get("condition").String())
	return join(", ", head,
		labelled("category", v.Get("category").String()),
		labelled("diagnosed at", v.Get("diagnosisAge").String()),
	)
}

func renderVisit(v gjson.Result) string {
	date := v.Get("date").String()
	if date == "" {
		date = v.Get("encounterDate").String()
	}
	return join(", ", join(": ", date, v.Get("reason").String()), labelled("notes", v.Get("notes").String()))
}

func renderGeneric(v gjson.Result) string {
	if !v.IsObject() {
		return v.String()
	}
	var parts []string
	v.ForEach(func(k, val gjson.Result) bool {
		if s := strings.TrimSpace(val.String()); s != "" {
			parts = append(parts, k.String()+": "+s)
		}
		return true
	})
	return strings.Join(parts, ", ")
}

func labelled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + " " + value
}

// join joins the non-empty parts with sep.
func join(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
