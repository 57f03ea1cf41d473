package pipeline

import "fmt"

// stageSpec describes one pipeline role: a name for logging and errors,
// a system prompt establishing the role, and a user prompt template
// that receives the raw email body.
type stageSpec struct {
	Name       string
	System     string
	userFormat string
}

// UserPrompt renders the stage's user prompt for the given email body.
func (s stageSpec) UserPrompt(emailBody string) string {
	return fmt.Sprintf(s.userFormat, emailBody)
}

var stageTriage = stageSpec{
	Name: "triage",
	System: "You are a bank branch manager triaging customer support email. " +
		"Classify how urgently each message needs a human response.",
	userFormat: "Analyze the urgency of this customer email and reply with a short " +
		"urgency assessment:\n\n%s",
}

var stageAnalyst = stageSpec{
	Name: "analyst",
	System: "You are a data analyst for a bank support team. You extract the " +
		"concrete facts a support agent needs: account references, amounts, " +
		"dates, merchant names, and the customer's request.",
	userFormat: "Extract the entities and key facts from this customer email as a " +
		"concise list:\n\n%s",
}

var stageDrafter = stageSpec{
	Name: "drafter",
	System: "You are a bank customer support lead. You write clear, courteous " +
		"reply emails. Ground every policy statement in the bank policy manual " +
		"by calling the search_bank_policy tool; never invent policy terms.",
	userFormat: "Draft a reply to the customer email below. Use the policy tool to " +
		"look up any applicable policy before citing it. Respond with the final " +
		"reply text only:\n\n%s",
}
