package synthesis

import (
	"fmt"
	"sort"
	"time"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
)

// DuplicateActivityError reports a merge attempt for an activity the store
// has already synthesized. Re-merging without protection would double-count
// every sample; the caller must pass force for an intentional re-merge.
type DuplicateActivityError struct {
	Activity string
}

func (e *DuplicateActivityError) Error() string {
	return fmt.Sprintf("activity %q already synthesized (use force to replace its contribution)", e.Activity)
}

// Merge folds one activity result into the store.
//
// The exercise-level update is the streaming weighted mean: with old count
// and average (n0, a0) and incoming (n1, a1), the new average is
// (a0*n0 + a1*n1) / (n0+n1). This is exact as long as each activity contributes
// each exercise at most once, which the duplicate check enforces.
//
// With force, an already synthesized activity is replaced rather than
// added: its recorded contribution is subtracted before the fresh data is
// merged, so counts stay correct.
func (s *Store) Merge(in *model.ActivityResult, activityName string, force bool) error {
	if containsString(s.Metadata.SynthesizedActivities, activityName) {
		if !force {
			return &DuplicateActivityError{Activity: activityName}
		}
		s.retract(activityName)
	}

	for _, id := range sortedKeys(in.Exercises) {
		er := in.Exercises[id]
		ex, ok := s.Exercises[id]
		if !ok {
			ex = &Exercise{
				N:            er.Count,
				AverageScore: er.AverageScore,
				MinScore:     er.MinScore,
				MaxScore:     er.MaxScore,
				Titre:        er.Titre,
				Theme:        er.Theme,
				SubTheme:     er.SubTheme,
				Params:       er.Params,
				Activities:   []string{activityName},
			}
			s.Exercises[id] = ex
			s.order = append(s.order, id)
		} else {
			oldN, oldAvg := ex.N, ex.AverageScore
			ex.N = oldN + er.Count
			if ex.N > 0 {
				ex.AverageScore = (oldAvg*float64(oldN) + er.AverageScore*float64(er.Count)) / float64(ex.N)
			}
			if oldN == 0 || er.MinScore < ex.MinScore {
				ex.MinScore = er.MinScore
			}
			if oldN == 0 || er.MaxScore > ex.MaxScore {
				ex.MaxScore = er.MaxScore
			}
			appendUnique(&ex.Activities, activityName)
		}
		if ex.Contributions == nil {
			ex.Contributions = map[string]Contribution{}
		}
		ex.Contributions[activityName] = Contribution{
			N:            er.Count,
			AverageScore: er.AverageScore,
			MinScore:     er.MinScore,
			MaxScore:     er.MaxScore,
		}
	}

	for _, name := range sortedKeys(in.Students) {
		is := in.Students[name]
		st, ok := s.Students[name]
		if !ok {
			st = &Student{
				Class:        is.Class,
				Group:        is.Group,
				Scores:       map[string]float64{},
				Activities:   []string{activityName},
				ScoreSources: map[string]map[string]float64{},
			}
			s.Students[name] = st
		} else {
			appendUnique(&st.Activities, activityName)
		}
		for id, score := range is.Scores {
			if old, exists := st.Scores[id]; exists {
				// The blend weight is the exercise's post-merge global
				// count, not a per-student count. Kept as-is for
				// compatibility with the historical store contents.
				if ex, ok := s.Exercises[id]; ok && ex.N > 1 {
					n := float64(ex.N)
					st.Scores[id] = (old*(n-1) + score) / n
				} else {
					st.Scores[id] = score
				}
			} else {
				st.Scores[id] = score
			}
			if st.ScoreSources == nil {
				st.ScoreSources = map[string]map[string]float64{}
			}
			if st.ScoreSources[id] == nil {
				st.ScoreSources[id] = map[string]float64{}
			}
			st.ScoreSources[id][activityName] = score
		}
	}

	s.finalize(activityName)
	return nil
}

// retract removes an activity's recorded contribution ahead of a forced
// re-merge. Exercise statistics are reversed exactly from the stored
// contribution; student scores are rebuilt by replaying their remaining raw
// sources. Records predating contribution tracking are left untouched, which
// degrades that exercise to additive re-merge.
func (s *Store) retract(activityName string) {
	for _, ex := range s.Exercises {
		c, ok := ex.Contributions[activityName]
		if !ok {
			continue
		}
		remaining := ex.N - c.N
		if remaining > 0 {
			ex.AverageScore = (ex.AverageScore*float64(ex.N) - c.AverageScore*float64(c.N)) / float64(remaining)
		} else {
			ex.AverageScore = 0
		}
		ex.N = remaining
		delete(ex.Contributions, activityName)
		removeString(&ex.Activities, activityName)

		ex.MinScore, ex.MaxScore = 0, 0
		first := true
		for _, rc := range ex.Contributions {
			if first || rc.MinScore < ex.MinScore {
				ex.MinScore = rc.MinScore
			}
			if first || rc.MaxScore > ex.MaxScore {
				ex.MaxScore = rc.MaxScore
			}
			first = false
		}
	}

	for _, st := range s.Students {
		touched := false
		for id, sources := range st.ScoreSources {
			if _, ok := sources[activityName]; !ok {
				continue
			}
			touched = true
			delete(sources, activityName)
			if len(sources) == 0 {
				delete(st.ScoreSources, id)
				delete(st.Scores, id)
				continue
			}
			st.Scores[id] = s.replayScore(id, sources)
		}
		if touched || containsString(st.Activities, activityName) {
			removeString(&st.Activities, activityName)
		}
	}

	removeString(&s.Metadata.SynthesizedActivities, activityName)
}

// replayScore rebuilds a blended student score from its raw per-activity
// sources, applied in synthesis order with the same global-count weight the
// incremental path uses. With a single remaining source this is exact; with
// several it is a deterministic stand-in for an order-dependent history.
func (s *Store) replayScore(exerciseID string, sources map[string]float64) float64 {
	var n float64
	if ex, ok := s.Exercises[exerciseID]; ok {
		n = float64(ex.N)
	}

	var score float64
	first := true
	for _, act := range s.Metadata.SynthesizedActivities {
		raw, ok := sources[act]
		if !ok {
			continue
		}
		if first || n <= 1 {
			score = raw
			first = false
			continue
		}
		score = (score*(n-1) + raw) / n
	}
	return score
}

// finalize recomputes the store-level invariants after a merge: total_n as
// the sum of all exercise counts, the synthesized activity list, timestamps
// and global statistics.
func (s *Store) finalize(activityName string) {
	totalN := 0
	var sumAvg float64
	for _, ex := range s.Exercises {
		totalN += ex.N
		sumAvg += ex.AverageScore
	}

	s.Metadata.TotalN = totalN
	appendUnique(&s.Metadata.SynthesizedActivities, activityName)
	s.Metadata.UpdatedAt = time.Now()

	stats := Statistics{
		TotalExercises: len(s.Exercises),
		TotalStudents:  len(s.Students),
		TotalN:         totalN,
	}
	if len(s.Exercises) > 0 {
		stats.AverageScoreAllExercises = sumAvg / float64(len(s.Exercises))
	}
	s.Metadata.Statistics = stats
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list *[]string, s string) {
	if !containsString(*list, s) {
		*list = append(*list, s)
	}
}

func removeString(list *[]string, s string) {
	out := (*list)[:0]
	for _, v := range *list {
		if v != s {
			out = append(out, v)
		}
	}
	*list = out
}
