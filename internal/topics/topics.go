// Package topics holds the discussion scenarios available for practice
// and builds the system instruction that shapes the model's persona.
package topics

import (
	"fmt"
	"strings"
)

// TargetExpression is a phrase the learner should use during the
// discussion.
type TargetExpression struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// DataPoint is a labelled figure shown with a scenario.
type DataPoint struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ContextData supplies optional scenario material such as survey figures
// or candidate topics.
type ContextData struct {
	Survey []DataPoint `json:"survey,omitempty"`
	Topics []string    `json:"topics,omitempty"`
}

// Topic is one practice scenario.
type Topic struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	ScenarioTitle       string             `json:"scenarioTitle"`
	ScenarioDescription string             `json:"scenarioDescription"`
	TargetExpressions   []TargetExpression `json:"targetExpressions"`
	ContextData         *ContextData       `json:"contextData,omitempty"`
}

var registry = []Topic{
	{
		ID:                  "benefits-drawbacks",
		Title:               "Talking about benefits and drawbacks",
		ScenarioTitle:       "Having a Class Blog",
		ScenarioDescription: "Your group wants to start a class blog. Persuade your class teacher to allow this. Discuss benefits, problems, and topics to include using the survey data.",
		TargetExpressions: []TargetExpression{
			{ID: 1, Text: "One of the benefits is that..."},
			{ID: 2, Text: "Another advantage is that..."},
			{ID: 3, Text: "One clear advantage is that..."},
			{ID: 4, Text: "A potential downside is that..."},
			{ID: 5, Text: "Some people might worry that..."},
			{ID: 6, Text: "The main problem is that..."},
		},
		ContextData: &ContextData{
			Survey: []DataPoint{
				{Label: "Hong Kongers reading blogs", Value: "77%"},
				{Label: "Students willing to contribute", Value: "70%"},
				{Label: "Want exam strategies", Value: "80%"},
			},
			Topics: []string{"News", "Shopping", "Health", "School Events"},
		},
	},
	{
		ID:                  "agreement-disagreement",
		Title:               "Showing agreement and disagreement",
		ScenarioTitle:       "School Picnic Location",
		ScenarioDescription: "Your class is deciding on the location for the annual school picnic. You need to discuss options (Beach vs. Country Park) and politely agree or disagree with your partner.",
		TargetExpressions: []TargetExpression{
			{ID: 1, Text: "I couldn't agree more..."},
			{ID: 2, Text: "That is a valid point, however..."},
			{ID: 3, Text: "I see what you're saying, but..."},
			{ID: 4, Text: "I'm afraid I have to disagree..."},
			{ID: 5, Text: "You have a point there."},
			{ID: 6, Text: "That's exactly what I think."},
		},
	},
	{
		ID:                  "tree-turn",
		Title:               "TREE in a turn",
		ScenarioTitle:       "Cancelling Sports Day",
		ScenarioDescription: "The school is considering cancelling Sports Day due to the hot weather. Practice the TREE method (Topic, Reason, Example, Ending) to express your view.",
		TargetExpressions: []TargetExpression{
			{ID: 1, Text: "I believe that..."},
			{ID: 2, Text: "This is mainly because..."},
			{ID: 3, Text: "For instance..."},
			{ID: 4, Text: "Take ... as an example."},
			{ID: 5, Text: "Therefore..."},
			{ID: 6, Text: "For these reasons..."},
		},
	},
	{
		ID:                  "explaining-choices",
		Title:               "Explaining choices",
		ScenarioTitle:       "Choosing a Class Gift",
		ScenarioDescription: "Your class teacher is leaving. You need to choose a farewell gift (Photo Album, Watch, or Gift Card). Explain why your choice is the best.",
		TargetExpressions: []TargetExpression{
			{ID: 1, Text: "I would suggest choosing..."},
			{ID: 2, Text: "The main reason for picking this is..."},
			{ID: 3, Text: "Compared to the other options..."},
			{ID: 4, Text: "It is a better choice because..."},
			{ID: 5, Text: "If we choose this, then..."},
		},
	},
	{
		ID:                  "active-listening",
		Title:               "Active listening",
		ScenarioTitle:       "Organizing a Charity Fair",
		ScenarioDescription: "You are planning a charity fair. Your goal is to show you are listening actively to your partner's ideas before adding your own.",
		TargetExpressions: []TargetExpression{
			{ID: 1, Text: "So, what you are saying is..."},
			{ID: 2, Text: "If I understand correctly, you mean..."},
			{ID: 3, Text: "That is an interesting idea..."},
			{ID: 4, Text: "Would you mind elaborating on...?"},
			{ID: 5, Text: "Following up on your point..."},
		},
	},
}

// All returns every available topic.
func All() []Topic {
	out := make([]Topic, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the topic with the given ID.
func Lookup(id string) (Topic, bool) {
	for _, t := range registry {
		if t.ID == id {
			return t, true
		}
	}
	return Topic{}, false
}

// SystemInstruction builds the persona prompt for a topic. The model
// plays "Sam", a study partner who leads the discussion, coaches the
// learner toward the target expressions, and switches into evaluation
// mode when it sees the feedback marker.
func SystemInstruction(topic Topic) string {
	var b strings.Builder

	b.WriteString(`You are "Sam", a friendly student in a Hong Kong secondary school. You are practicing for the HKDSE English Speaking exam (Group Discussion) with a classmate (the user).` + "\n\n")
	fmt.Fprintf(&b, "CURRENT TOPIC: %q\n", topic.Title)
	fmt.Fprintf(&b, "SCENARIO: %s\n\n", topic.ScenarioDescription)

	b.WriteString("YOUR OBJECTIVE:\n")
	b.WriteString("Guide the user to have an **extended** and **detailed** discussion. You must ensure the user practices the specific TARGET EXPRESSIONS for this topic.\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. **SAM STARTS**: When the session begins, you MUST take the lead. Greet the user, introduce the scenario, and ask for their opinion to get the discussion moving.\n")
	b.WriteString("2. **STRICT ENGLISH**: Speak ONLY in English. Interrupt if they use other languages.\n")
	b.WriteString("3. **SCAFFOLDING**: If the user is stuck or gives short answers, give specific hints and guiding questions.\n")
	b.WriteString("4. **TREE STRUCTURE**: Check for a Topic, Reason, Example, and Ending in their turns.\n")
	b.WriteString("5. **FEEDBACK MODE**:\n")
	b.WriteString("   - If the user sends a message containing \"[REQUEST_FEEDBACK]\", you must stop the roleplay immediately.\n")
	b.WriteString("   - Provide a warm, constructive oral evaluation.\n")
	b.WriteString("   - Focus on:\n")
	b.WriteString("     a) Usage of target expressions (list which ones they used or missed).\n")
	b.WriteString("     b) Quality of reasons and examples.\n")
	b.WriteString("     c) General fluency.\n")
	b.WriteString("   - Conclude by saying \"Practice finished! Well done.\" and then append the special code \"[SESSION_FINISHED]\" at the very end of your final spoken response.\n\n")

	b.WriteString("TARGET EXPRESSIONS:\n")
	for _, te := range topic.TargetExpressions {
		fmt.Fprintf(&b, "%d. %q\n", te.ID, te.Text)
	}

	b.WriteString("\nTONE: Friendly, student-like, slow and clear speaking speed.\n")
	return b.String()
}
