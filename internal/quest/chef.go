package quest

import "fmt"

const (
	chefWelcome  = "Welcome back to the kitchen, Chef! 🥦 I'm Big Query Broccolini, Senior Data Chef. I've been at Big Q for a decade perfecting Project CRISTIAN. Upload your raw data and let's plate a perfect Medallion Schema. Clean data! ✨"
	chefChosen   = "Bold move. Now, explain the rationale so the developers don't choke on it."
	chefComplete = "Magnificent! ✨ The schema is plated. Let me package the deliverables for the engineers."
)

func chefParsed(n int) string {
	return fmt.Sprintf("Found %d fields. Most of them look edible. Let's start the Appetizer: The Bronze Layer.", n)
}

func chefReaction(reaction string) string {
	if reaction == "" {
		return "Ready for the next ingredient?"
	}
	return reaction + " Ready for the next ingredient?"
}

func logUploaded(name string) string { return "Uploaded: " + name }

func logParsed(n int) string { return fmt.Sprintf("Parsed %d fields.", n) }

func logDecision(field string) string { return "Decision logged for " + field }
