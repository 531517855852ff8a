// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package topic

type topicVocab struct {
	name     string
	keywords []string
}

type subjectVocab struct {
	name     string
	keywords []string
	topics   []topicVocab
}

// subjects is ordered; the order breaks ties. Keywords are lower case and
// matched as substrings, so short entries like "sin" also hit inside longer
// words.
var subjects = []subjectVocab{
	{
		name: "Mathematics",
		keywords: []string{
			"algebra", "calculus", "geometry", "trigonometry", "statistics",
			"probability", "matrix", "vector", "differential", "integral",
			"equation", "polynomial", "logarithm", "sequence", "series",
			"coordinate", "function", "limit", "derivative", "permutation",
			"combination", "set theory", "number theory", "l'hopital", "l'hôpital",
		},
		topics: []topicVocab{
			{"Algebra", []string{"equation", "polynomial", "quadratic", "linear", "variable", "expression"}},
			{"Calculus", []string{"derivative", "integral", "limit", "differential", "continuity", "l'hopital", "l'hôpital"}},
			{"Trigonometry", []string{"sin", "cos", "tan", "trigonometric", "angle", "radian"}},
			{"Coordinate Geometry", []string{"coordinate", "slope", "line", "circle", "parabola", "ellipse"}},
			{"Probability & Statistics", []string{"probability", "mean", "median", "mode", "variance", "distribution"}},
		},
	},
	{
		name: "Physics",
		keywords: []string{
			"force", "energy", "momentum", "velocity", "acceleration",
			"gravity", "electromagnetic", "wave", "optics", "thermodynamics",
			"quantum", "nuclear", "electric", "magnetic", "circuit",
			"resistance", "capacitor", "inductor", "mechanics", "fluid",
			"sound", "light", "heat", "temperature", "pressure",
		},
		topics: []topicVocab{
			{"Mechanics", []string{"force", "newton", "momentum", "velocity", "acceleration", "friction"}},
			{"Thermodynamics", []string{"heat", "temperature", "entropy", "enthalpy", "gas law"}},
			{"Electromagnetism", []string{"electric", "magnetic", "current", "voltage", "resistance", "circuit"}},
			{"Optics", []string{"light", "lens", "mirror", "reflection", "refraction", "wave"}},
			{"Modern Physics", []string{"quantum", "nuclear", "photoelectric", "relativity", "atom"}},
		},
	},
	{
		name: "Chemistry",
		keywords: []string{
			"element", "compound", "reaction", "bond", "organic",
			"inorganic", "acid", "base", "oxidation", "reduction",
			"electrochemistry", "mole", "atomic", "molecular", "periodic",
			"chemical", "solution", "equilibrium", "kinetics", "polymer",
			"isomer", "functional group", "stoichiometry",
		},
		topics: []topicVocab{
			{"Organic Chemistry", []string{"organic", "carbon", "hydrocarbon", "functional group", "isomer", "polymer"}},
			{"Inorganic Chemistry", []string{"element", "periodic", "metal", "non-metal", "coordination"}},
			{"Physical Chemistry", []string{"thermodynamics", "kinetics", "equilibrium", "electrochemistry", "solution"}},
		},
	},
	{
		name: "Biology",
		keywords: []string{
			"cell", "dna", "rna", "protein", "gene", "evolution",
			"ecology", "anatomy", "physiology", "botany", "zoology",
			"microbiology", "genetics", "enzyme", "hormone", "neuron",
			"photosynthesis", "respiration", "mitosis", "meiosis",
			"taxonomy", "biodiversity", "ecosystem",
		},
		topics: []topicVocab{
			{"Cell Biology", []string{"cell", "membrane", "organelle", "mitosis", "meiosis"}},
			{"Genetics", []string{"gene", "dna", "rna", "heredity", "mutation", "chromosome"}},
			{"Plant Biology", []string{"photosynthesis", "plant", "root", "leaf", "transpiration"}},
			{"Human Physiology", []string{"heart", "lung", "kidney", "brain", "blood", "digestion"}},
			{"Ecology", []string{"ecosystem", "food chain", "biodiversity", "habitat", "population"}},
		},
	},
}
