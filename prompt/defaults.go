package prompt

// Template names used by the model-backed collaborators.
const (
	Classify    = "classify"
	Plan        = "plan"
	GenerateSQL = "generate_sql"
	Synthesize  = "synthesize"
)

// System prompts, one per collaborator.
const (
	ClassifySystem = `You route retail analytics questions. Answer with exactly one word:
rag    - the answer is in the documents (policies, definitions, calendars)
sql    - the answer needs only the database
hybrid - the answer needs document facts (dates, KPI definitions) applied to the database`

	PlanSystem = `You plan how to answer a retail analytics question. Extract constraints,
date ranges, KPI formulas and entities from the question and documents, then
write a short numbered plan.`

	GenerateSQLSystem = `You write a single SQLite query that answers the question. Use only
tables and columns from the schema. Quote table names containing spaces with
double quotes. Return the SQL only, without commentary or code fences.`

	SynthesizeSystem = `You write the final answer to a retail analytics question from the SQL
result and documents. Respond with a JSON object with keys:
"final_answer" (matching the format hint exactly),
"explanation" (at most two sentences),
"citations" (list of DB tables and document chunk ids used).`
)

const classifyTemplate = `Question: {{.question}}
Classification:`

const planTemplate = `Question: {{.question}}

Documents:
{{.docs}}

Plan:`

const generateSQLTemplate = `Schema:
{{.schema}}
Question: {{.question}}

Plan:
{{.plan}}

SQL:`

const synthesizeTemplate = `Question: {{.question}}
Format hint: {{.format_hint}}

SQL query:
{{.query}}

SQL result:
{{.result}}

Documents:
{{.docs}}`

// Defaults returns a manager loaded with the built-in templates.
func Defaults() *Manager {
	m := NewManager()
	for name, content := range map[string]string{
		Classify:    classifyTemplate,
		Plan:        planTemplate,
		GenerateSQL: generateSQLTemplate,
		Synthesize:  synthesizeTemplate,
	} {
		if err := m.RegisterString(name, content); err != nil {
			panic(err)
		}
	}
	return m
}
