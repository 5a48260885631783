package core

import (
	"fmt"
	"strings"

	"github.com/veloria/leadchat/internal/store"
)

const systemInstruction = "You are a friendly sales assistant. Your job is to collect lead information " +
	"(name, age, country, product interest) through natural conversation while providing helpful answers. " +
	"Use the conversation context provided to continue where things left off and never ask for information " +
	"the customer already gave. When you learn a detail, restate it on its own line as 'Name: ...', 'Age: ...', " +
	"'Country: ...' or 'Product interest: ...' so it is captured. Be concise, warm and professional. " +
	"Do not make up company information; if the provided context does not cover a question, say so."

const farewellText = "Thank you for chatting with me! Goodbye!"

const confirmedText = "Your details are confirmed. Our team will reach out to you shortly. Thank you!"

// confirmationSummary is appended once every required field is present.
func confirmationSummary(lead *store.Lead) string {
	var b strings.Builder
	b.WriteString("Great! Let's review the details you've provided:\n\n")
	fmt.Fprintf(&b, "Your name: %s\n", lead.Name)
	if lead.Age != "" {
		fmt.Fprintf(&b, "Age: %s\n", lead.Age)
	}
	fmt.Fprintf(&b, "Country: %s\n", lead.Country)
	fmt.Fprintf(&b, "Product interest: %s\n\n", lead.ProductInterest)
	b.WriteString("Please confirm if the above details are correct by typing 'confirm'.")
	return b.String()
}

// nudgeText picks the follow-up wording for the lead's nudge count so repeat
// nudges do not sound identical.
func nudgeText(lead *store.Lead) string {
	name := lead.Name
	if name == "" {
		name = "there"
	}
	switch lead.FollowUpCount {
	case 0:
		return fmt.Sprintf("Hi %s! I noticed you might have stepped away. I'm still here to help you find the right product. What would you like to explore?", name)
	case 1:
		return fmt.Sprintf("Just checking in, %s. I have some recommendations based on our conversation. Would you like to see them?", name)
	default:
		return fmt.Sprintf("Hi %s, I'll be here whenever you're ready to continue our conversation. Feel free to message me anytime!", name)
	}
}
