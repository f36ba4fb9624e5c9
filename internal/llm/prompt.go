package llm

// SystemPrompt is the fixed instruction sent with every structuring request.
const SystemPrompt = "You are an AI trained to analyze and structure extracted text. " +
	"You now need to extract key value pairs from the given text and categorize them into a JSON format. " +
	"The text may contain various symbols, white spaces, and other artifacts due to OCR extraction. " +
	"Check if the data makes sense because OCR often extracts meaningless data. " +
	"Focus on identifying meaningful key-value pairs. " +
	"Your output should strictly only be in a JSON format, without any additional text or explanations."

const userPreamble = "This is my input data, it is extracted from a pdf file which is a form like bank registration form or any other form. " +
	"I have used OCR to extract the text from the form. " +
	"Since it's OCR it may have many problems like useless symbols, white spaces and stuff at random locations.\n"

// UserPrompt wraps raw OCR text for the user turn.
func UserPrompt(text string) string {
	return userPreamble + text
}
