package costs

import (
	"fmt"
	"strings"
)

// Grade is the fee earner classification used to set hourly rates.
// The set is closed: anything outside it is rejected at the boundary.
type Grade string

const (
	GradeA                   Grade = "A"
	GradeB                   Grade = "B"
	GradeC                   Grade = "C"
	GradeD                   Grade = "D"
	GradeCounselKC           Grade = "COUNSEL_KC"
	GradeCounselJuniorSenior Grade = "COUNSEL_JUNIOR_10PLUS"
	GradeCounselJunior       Grade = "COUNSEL_JUNIOR"
	GradeExpert              Grade = "EXPERT"
)

var gradeLabels = map[Grade]string{
	GradeA:                   "Grade A",
	GradeB:                   "Grade B",
	GradeC:                   "Grade C",
	GradeD:                   "Grade D",
	GradeCounselKC:           "Counsel (KC)",
	GradeCounselJuniorSenior: "Junior Counsel (10+ years)",
	GradeCounselJunior:       "Junior Counsel (under 10 years)",
	GradeExpert:              "Expert",
}

// gradeAliases maps lower-cased spellings seen in extracted records to a grade
var gradeAliases = map[string]Grade{
	"a":                               GradeA,
	"grade a":                         GradeA,
	"b":                               GradeB,
	"grade b":                         GradeB,
	"c":                               GradeC,
	"grade c":                         GradeC,
	"d":                               GradeD,
	"grade d":                         GradeD,
	"kc":                              GradeCounselKC,
	"qc":                              GradeCounselKC,
	"counsel kc":                      GradeCounselKC,
	"counsel (kc)":                    GradeCounselKC,
	"counsel_kc":                      GradeCounselKC,
	"counsel_junior_10plus":           GradeCounselJuniorSenior,
	"counsel junior 10+":              GradeCounselJuniorSenior,
	"junior counsel (10+ years)":      GradeCounselJuniorSenior,
	"counsel_junior":                  GradeCounselJunior,
	"counsel junior":                  GradeCounselJunior,
	"junior counsel":                  GradeCounselJunior,
	"junior counsel (under 10 years)": GradeCounselJunior,
	"expert":                          GradeExpert,
}

// compactGrade folds the spellings of junior counsel seniority, such as
// "Counsel Junior ≥10yr" or "junior counsel >= 10 years", onto one key
var compactGrade = strings.NewReplacer(" ", "", "≥", ">=", "years", "yr", "yrs", "yr", "(", "", ")", "")

var counselSeniority = map[string]Grade{
	"counseljunior>=10yr": GradeCounselJuniorSenior,
	"juniorcounsel>=10yr": GradeCounselJuniorSenior,
	"counseljunior10+yr":  GradeCounselJuniorSenior,
	"juniorcounsel10+yr":  GradeCounselJuniorSenior,
	"counseljunior<10yr":  GradeCounselJunior,
	"juniorcounsel<10yr":  GradeCounselJunior,
}

// Grades lists every grade in presentation order
func Grades() []Grade {
	return []Grade{
		GradeA, GradeB, GradeC, GradeD,
		GradeCounselKC, GradeCounselJuniorSenior, GradeCounselJunior,
		GradeExpert,
	}
}

// ParseGrade accepts a grade tag or a common label, case-insensitively
func ParseGrade(s string) (Grade, error) {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if g, ok := gradeAliases[key]; ok {
		return g, nil
	}
	if g, ok := counselSeniority[compactGrade.Replace(key)]; ok {
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGrade, s)
}

func (g Grade) Valid() bool {
	_, ok := gradeLabels[g]
	return ok
}

// Label is the heading used for the grade's section of a bill
func (g Grade) Label() string {
	if l, ok := gradeLabels[g]; ok {
		return l
	}
	return string(g)
}

func (g Grade) String() string {
	return string(g)
}

// DisbursementType classifies an out-of-pocket expense
type DisbursementType string

const (
	DisbursementCourtFee   DisbursementType = "court_fee"
	DisbursementCounselFee DisbursementType = "counsel_fee"
	DisbursementExpertFee  DisbursementType = "expert_fee"
	DisbursementTravel     DisbursementType = "travel"
	DisbursementSearchFee  DisbursementType = "search_fee"
	DisbursementCourier    DisbursementType = "courier"
	DisbursementCopying    DisbursementType = "copying"
	DisbursementOther      DisbursementType = "other"
)

var disbursementLabels = map[DisbursementType]string{
	DisbursementCourtFee:   "Court Fees",
	DisbursementCounselFee: "Counsel's Fees",
	DisbursementExpertFee:  "Expert's Fees",
	DisbursementTravel:     "Travel",
	DisbursementSearchFee:  "Search Fees",
	DisbursementCourier:    "Courier",
	DisbursementCopying:    "Copying",
	DisbursementOther:      "Other Disbursements",
}

// ParseDisbursementType accepts the type tag or its label, ignoring case and separators
func ParseDisbursementType(s string) (DisbursementType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(key)
	key = strings.TrimSuffix(key, "s")
	for t, label := range disbursementLabels {
		l := strings.NewReplacer(" ", "_", "'", "").Replace(strings.ToLower(label))
		if key == strings.TrimSuffix(string(t), "s") || key == strings.TrimSuffix(l, "s") {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDisbursementType, s)
}

func (t DisbursementType) Valid() bool {
	_, ok := disbursementLabels[t]
	return ok
}

func (t DisbursementType) Label() string {
	if l, ok := disbursementLabels[t]; ok {
		return l
	}
	return string(t)
}

// DefaultVATExempt reports whether the type is outside the scope of VAT unless
// the voucher says otherwise.
func (t DisbursementType) DefaultVATExempt() bool {
	return t == DisbursementCourtFee
}
