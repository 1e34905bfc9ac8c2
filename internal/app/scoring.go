package app

import "live-quiz-service/internal/domain"

// MultipleChoicePoints is awarded for a correct multiple choice answer.
const MultipleChoicePoints = 100

// Score grades a submission. Multiple choice is graded on the spot by a
// case-sensitive key match; essays score zero until an instructor grades them.
func Score(question domain.Question, content string) (points int, graded bool) {
	switch question.Type {
	case domain.MultipleChoice:
		if content != "" && content == question.AnswerKey {
			return MultipleChoicePoints, true
		}
		return 0, true
	default:
		return 0, false
	}
}
