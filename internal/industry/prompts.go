package industry

// Extraction prompt templates. Each takes one %s for the transcript and
// instructs the model to return only a JSON object with an "events" array
// matching the ExtractedEvent schema. Keep these strict: downstream parsing
// tolerates fences and prose, but the fewer surprises the better.

const eventSchema = `{
  "events": [
    {
      "type": "service_call|appointment|meeting|quote|emergency|follow_up|inspection|consultation",
      "title": "",
      "description": "",
      "customer_name": "",
      "customer_phone": "",
      "customer_email": "",
      "location": "",
      "proposed_datetime": "",
      "urgency": "low|medium|high|emergency",
      "price_estimate": "",
      "service_type": "",
      "notes": ""
    }
  ]
}`

const genericPrompt = `You are an appointment-extraction engine for a small-business phone line.

Read the call transcript below and extract every schedulable request the
caller makes. One transcript can contain zero, one, or several events.

Rules:
- Ground every field in the transcript. Leave fields empty instead of guessing.
- Copy names, phone numbers, emails and addresses exactly as spoken.
- proposed_datetime is whatever timing the caller gave, verbatim ("tomorrow at 2pm", "next Tuesday").
- urgency reflects the caller's words, not your judgement.
- Return ONLY valid JSON matching this schema, no commentary, no markdown fences:
` + eventSchema + `

TRANSCRIPT:
%s
`

const plumbingPrompt = `You are an appointment-extraction engine for a plumbing company's phone line.

Read the call transcript below and extract every service request. Callers
describe leaks, clogs, burst pipes, water heaters and fixture installs; a
burst pipe or active flooding is always urgency "emergency".

Rules:
- Ground every field in the transcript. Leave fields empty instead of guessing.
- Capture the full service address when given (house number, street, city).
- Copy phone numbers exactly as spoken.
- Return ONLY valid JSON matching this schema, no commentary, no markdown fences:
` + eventSchema + `

TRANSCRIPT:
%s
`

const medicalPrompt = `You are an appointment-extraction engine for a medical practice's phone line.

Read the call transcript below and extract every appointment or consultation
request. Do not add diagnoses or medical advice; record only what the caller
asked for. Symptoms suggesting an emergency (chest pain, trouble breathing)
are urgency "emergency".

Rules:
- Ground every field in the transcript. Leave fields empty instead of guessing.
- Patient name and callback number matter most; capture them exactly.
- Return ONLY valid JSON matching this schema, no commentary, no markdown fences:
` + eventSchema + `

TRANSCRIPT:
%s
`

const legalPrompt = `You are an appointment-extraction engine for a law firm's phone line.

Read the call transcript below and extract every consultation or meeting
request. Capture what the matter concerns in the description; deadlines and
court dates belong in proposed_datetime or notes.

Rules:
- Ground every field in the transcript. Leave fields empty instead of guessing.
- Client name and callback number matter most; capture them exactly.
- Return ONLY valid JSON matching this schema, no commentary, no markdown fences:
` + eventSchema + `

TRANSCRIPT:
%s
`
