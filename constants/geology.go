package constants

import (
	"regexp"
	"strings"
)

var elementSymbols = map[string]struct{}{}

func init() {
	for _, s := range strings.Fields(`H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co Ni
		Cu Zn Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb Te I Xe Cs Ba La Ce Pr Nd Pm Sm
		Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os Ir Pt Au Hg Tl Pb Bi Po At Rn Fr Ra Ac Th Pa U Np Pu Am Cm
		Bk Cf Es Fm Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl Mc Lv Ts Og`) {
		elementSymbols[s] = struct{}{}
	}
}

var reFormulaPart = regexp.MustCompile(`[A-Z][a-z]?\d*`)

// IsElement reports whether s is a chemical element symbol (case-sensitive).
func IsElement(s string) bool {
	_, ok := elementSymbols[s]
	return ok
}

// IsAnalyte accepts element symbols, simple oxide formulas (Fe2O3, U3O8)
// and the rare-earth aggregate TREO.
func IsAnalyte(s string) bool {
	if IsElement(s) || s == "TREO" {
		return true
	}
	parts := reFormulaPart.FindAllString(s, -1)
	if len(parts) < 2 || strings.Join(parts, "") != s {
		return false
	}
	for _, p := range parts {
		if !IsElement(strings.TrimRight(p, "0123456789")) {
			return false
		}
	}
	return true
}

// AssayUnits are the concentration units an assay may carry.
var AssayUnits = []string{"ppm", "ppb", "ppt", "%", "wt%", "vol%", "g/t", "mg/t", "oz/t", "lb/t"}

func IsAssayUnit(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	for _, x := range AssayUnits {
		if u == x {
			return true
		}
	}
	return false
}

// Observation categories.
const (
	ObservationStructural     = "structural"
	ObservationLithology      = "lithology"
	ObservationAlteration     = "alteration"
	ObservationMineralization = "mineralization"
)

// ObservationKeywords maps a category to the terms that mark a sentence as that kind of observation.
// Checked in ObservationCategories order.
var ObservationKeywords = map[string][]string{
	ObservationAlteration: {
		"alteration", "altered", "sericite", "sericitic", "silicification", "silicified", "propylitic",
		"argillic", "potassic", "chloritization", "chloritic", "epidote", "kaolinite", "hematitic",
	},
	ObservationMineralization: {
		"mineralization", "mineralized", "mineralisation", "chalcopyrite", "pyrite", "sphalerite",
		"galena", "molybdenite", "sulfide", "sulphide", "visible gold", "bornite", "malachite",
	},
	ObservationLithology: {
		"granite", "granodiorite", "diorite", "andesite", "basalt", "rhyolite", "schist", "gneiss",
		"sandstone", "limestone", "shale", "quartzite", "tuff", "breccia", "quartz vein", "dolomite",
		"monzonite", "porphyry", "conglomerate", "siltstone", "marble", "skarn",
	},
}

var ObservationCategories = []string{ObservationAlteration, ObservationMineralization, ObservationLithology}

// Lithologies is the flat lithology vocabulary used to label drill intervals.
func Lithologies() []string {
	return ObservationKeywords[ObservationLithology]
}
