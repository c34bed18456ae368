package concepts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PhraseMapping maps a surface phrase to its canonical concept label.
// Tables are slices so matching walks them in declaration order; a map
// would make output order depend on hash order.
type PhraseMapping struct {
	Phrase  string `yaml:"phrase"`
	Concept string `yaml:"concept"`
}

// symptomPhrases is the built-in symptom lexicon. Every row whose phrase
// occurs in the normalized description emits a concept, so overlapping
// rows ("panic attack" and "panic") both fire on the same text.
var symptomPhrases = []PhraseMapping{
	{Phrase: "migraine", Concept: "migraine"},
	{Phrase: "headache", Concept: "headache"},
	{Phrase: "head pain", Concept: "headache"},
	{Phrase: "nausea", Concept: "nausea"},
	{Phrase: "nauseous", Concept: "nausea"},
	{Phrase: "vomit", Concept: "vomiting"},
	{Phrase: "dizzy", Concept: "dizziness"},
	{Phrase: "dizziness", Concept: "dizziness"},
	{Phrase: "lightheaded", Concept: "dizziness"},
	{Phrase: "fatigue", Concept: "fatigue"},
	{Phrase: "exhausted", Concept: "fatigue"},
	{Phrase: "tired", Concept: "fatigue"},
	{Phrase: "insomnia", Concept: "insomnia"},
	{Phrase: "can't sleep", Concept: "insomnia"},
	{Phrase: "cannot sleep", Concept: "insomnia"},
	{Phrase: "anxiety", Concept: "anxiety"},
	{Phrase: "anxious", Concept: "anxiety"},
	{Phrase: "panic attack", Concept: "panic_attack"},
	{Phrase: "panic", Concept: "anxiety"},
	{Phrase: "chest pain", Concept: "chest_pain"},
	{Phrase: "chest tightness", Concept: "chest_pain"},
	{Phrase: "palpitation", Concept: "palpitations"},
	{Phrase: "racing heart", Concept: "palpitations"},
	{Phrase: "shortness of breath", Concept: "shortness_of_breath"},
	{Phrase: "short of breath", Concept: "shortness_of_breath"},
	{Phrase: "stomach ache", Concept: "stomach_pain"},
	{Phrase: "stomachache", Concept: "stomach_pain"},
	{Phrase: "stomach pain", Concept: "stomach_pain"},
	{Phrase: "abdominal pain", Concept: "stomach_pain"},
	{Phrase: "cramp", Concept: "cramps"},
	{Phrase: "bloating", Concept: "bloating"},
	{Phrase: "bloated", Concept: "bloating"},
	{Phrase: "heartburn", Concept: "heartburn"},
	{Phrase: "acid reflux", Concept: "heartburn"},
	{Phrase: "diarrhea", Concept: "diarrhea"},
	{Phrase: "constipation", Concept: "constipation"},
	{Phrase: "fever", Concept: "fever"},
	{Phrase: "chills", Concept: "chills"},
	{Phrase: "cough", Concept: "cough"},
	{Phrase: "sore throat", Concept: "sore_throat"},
	{Phrase: "runny nose", Concept: "congestion"},
	{Phrase: "congest", Concept: "congestion"},
	{Phrase: "rash", Concept: "skin_rash"},
	{Phrase: "itch", Concept: "itching"},
	{Phrase: "hives", Concept: "skin_rash"},
	{Phrase: "joint pain", Concept: "joint_pain"},
	{Phrase: "back pain", Concept: "back_pain"},
	{Phrase: "neck pain", Concept: "neck_pain"},
	{Phrase: "muscle ache", Concept: "muscle_pain"},
	{Phrase: "muscle pain", Concept: "muscle_pain"},
	{Phrase: "sore muscles", Concept: "muscle_pain"},
	{Phrase: "numbness", Concept: "numbness"},
	{Phrase: "tingling", Concept: "tingling"},
	{Phrase: "blurred vision", Concept: "blurred_vision"},
	{Phrase: "brain fog", Concept: "brain_fog"},
	{Phrase: "low mood", Concept: "low_mood"},
	{Phrase: "depressed", Concept: "low_mood"},
	{Phrase: "irritable", Concept: "irritability"},
	{Phrase: "swelling", Concept: "swelling"},
	{Phrase: "swollen", Concept: "swelling"},
}

// lifestylePhrases is the built-in lifestyle lexicon, matched against the
// concatenated sleep/stress/activity/food text and against symptom context
// for reported triggers.
var lifestylePhrases = []PhraseMapping{
	{Phrase: "no sleep", Concept: "sleep_deprivation"},
	{Phrase: "couldn't sleep", Concept: "sleep_deprivation"},
	{Phrase: "sleepless", Concept: "sleep_deprivation"},
	{Phrase: "poor sleep", Concept: "poor_sleep"},
	{Phrase: "bad sleep", Concept: "poor_sleep"},
	{Phrase: "slept badly", Concept: "poor_sleep"},
	{Phrase: "restless night", Concept: "poor_sleep"},
	{Phrase: "woke up often", Concept: "poor_sleep"},
	{Phrase: "slept well", Concept: "good_sleep"},
	{Phrase: "good sleep", Concept: "good_sleep"},
	{Phrase: "late night", Concept: "late_night"},
	{Phrase: "stayed up", Concept: "late_night"},
	{Phrase: "stressed", Concept: "high_stress"},
	{Phrase: "stressful", Concept: "high_stress"},
	{Phrase: "high stress", Concept: "high_stress"},
	{Phrase: "overwhelmed", Concept: "high_stress"},
	{Phrase: "work pressure", Concept: "high_stress"},
	{Phrase: "deadline", Concept: "high_stress"},
	{Phrase: "relaxed", Concept: "low_stress"},
	{Phrase: "calm day", Concept: "low_stress"},
	{Phrase: "meditat", Concept: "meditation"},
	{Phrase: "yoga", Concept: "yoga"},
	{Phrase: "went for a run", Concept: "running"},
	{Phrase: "running", Concept: "running"},
	{Phrase: "jog", Concept: "running"},
	{Phrase: "walk", Concept: "walking"},
	{Phrase: "hike", Concept: "walking"},
	{Phrase: "gym", Concept: "gym_workout"},
	{Phrase: "workout", Concept: "gym_workout"},
	{Phrase: "weight training", Concept: "gym_workout"},
	{Phrase: "exercise", Concept: "exercise"},
	{Phrase: "swim", Concept: "swimming"},
	{Phrase: "cycling", Concept: "cycling"},
	{Phrase: "bike ride", Concept: "cycling"},
	{Phrase: "alcohol", Concept: "alcohol"},
	{Phrase: "wine", Concept: "alcohol"},
	{Phrase: "beer", Concept: "alcohol"},
	{Phrase: "coffee", Concept: "caffeine"},
	{Phrase: "caffeine", Concept: "caffeine"},
	{Phrase: "energy drink", Concept: "caffeine"},
	{Phrase: "late meal", Concept: "late_eating"},
	{Phrase: "ate late", Concept: "late_eating"},
	{Phrase: "late dinner", Concept: "late_eating"},
	{Phrase: "skipped breakfast", Concept: "skipped_meal"},
	{Phrase: "skipped lunch", Concept: "skipped_meal"},
	{Phrase: "skipped dinner", Concept: "skipped_meal"},
	{Phrase: "didn't eat", Concept: "skipped_meal"},
	{Phrase: "fast food", Concept: "processed_food"},
	{Phrase: "junk food", Concept: "processed_food"},
	{Phrase: "takeout", Concept: "processed_food"},
	{Phrase: "spicy", Concept: "spicy_food"},
	{Phrase: "dairy", Concept: "dairy"},
	{Phrase: "gluten", Concept: "gluten"},
	{Phrase: "sugar", Concept: "sugar"},
	{Phrase: "dehydrated", Concept: "dehydration"},
	{Phrase: "hydrated", Concept: "hydration"},
	{Phrase: "travel", Concept: "travel"},
	{Phrase: "flight", Concept: "travel"},
	{Phrase: "jet lag", Concept: "jet_lag"},
	{Phrase: "screen time", Concept: "screen_time"},
}

// Lexicon bundles the ordered phrase tables the extractor matches against.
type Lexicon struct {
	Symptoms  []PhraseMapping
	Lifestyle []PhraseMapping
}

// DefaultLexicon returns the built-in tables. The returned slices are
// copies, so callers may append without touching the package defaults.
func DefaultLexicon() *Lexicon {
	lex := &Lexicon{
		Symptoms:  make([]PhraseMapping, len(symptomPhrases)),
		Lifestyle: make([]PhraseMapping, len(lifestylePhrases)),
	}
	copy(lex.Symptoms, symptomPhrases)
	copy(lex.Lifestyle, lifestylePhrases)
	return lex
}

// lexiconFile is the YAML shape of a user lexicon extension.
type lexiconFile struct {
	Symptoms  []PhraseMapping `yaml:"symptoms"`
	Lifestyle []PhraseMapping `yaml:"lifestyle"`
}

// LoadLexiconFile returns the default lexicon with the rows from path
// appended after the built-ins. YAML sequences keep their file order, so
// extension rows match in the order they were written.
func LoadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}

	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon file: %w", err)
	}

	lex := DefaultLexicon()
	for _, row := range append(file.Symptoms, file.Lifestyle...) {
		if row.Phrase == "" || row.Concept == "" {
			return nil, fmt.Errorf("lexicon file %s: rows need both phrase and concept", path)
		}
	}
	lex.Symptoms = append(lex.Symptoms, file.Symptoms...)
	lex.Lifestyle = append(lex.Lifestyle, file.Lifestyle...)
	return lex, nil
}
