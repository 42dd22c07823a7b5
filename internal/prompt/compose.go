package prompt

import "fmt"

// NotFoundAnswer is what the model is told to say when the context has no answer.
const NotFoundAnswer = "I could not find this in the document."

const template = `You are an assistant answering questions about a single PDF document.

Follow these rules:
1. Answer only from the document context below. Do not use outside knowledge.
2. Cite the page of every fact you use in the form (Page N).
3. If the context does not contain the answer or you are unsure, reply "%s" instead of guessing.

Document context:
%s

Question: %s

Answer:`

// Compose wraps the question and context in the fixed instruction template.
// The context is embedded in full.
func Compose(question, context string) string {
	return fmt.Sprintf(template, NotFoundAnswer, context, question)
}
