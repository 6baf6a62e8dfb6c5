package prompt

// Default returns templates suited to a sqlcoder-style SQL model and an
// instruction-tuned response model.
func Default() Set {
	return Set{
		SQL:      defaultSQL,
		Response: defaultResponse,
		Regen:    defaultRegen,
	}
}

const defaultSQL = `### Task
Generate a SQL query to answer [QUESTION]{input}[/QUESTION]

### Instructions
- Only generate SELECT statements.
- Use the conversation so far to resolve follow-up questions.

### Conversation
{history}

### Database Schema
The query will run on a database with the following schema:
{table_info}

### Answer
Given the database schema, here is the SQL query that answers [QUESTION]{input}[/QUESTION]
[SQL]
`

const defaultRegen = `### Task
Generate a SQL query to answer [QUESTION]{input}[/QUESTION]

### Instructions
- Only generate SELECT statements.
- The query below failed to execute. Write a corrected query.

### Failed query
{wrong_sql_query}

### Database Schema
The query will run on a database with the following schema:
{table_info}

### Answer
Given the database schema, here is the corrected SQL query that answers [QUESTION]{input}[/QUESTION]
[SQL]
`

const defaultResponse = `[INST] You are a helpful data assistant. Answer the user's question in plain language using only the SQL result below. If the result is empty, say that no matching data was found.

Conversation so far:
{history}

Question: {question}
SQL query: {query}
SQL result: {results}
[/INST]`
