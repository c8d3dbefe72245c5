package llm

const classificationSchema = `{
  "type": "object",
  "properties": {
    "document_type": {
      "type": "string",
      "enum": ["passport", "drivers_license", "national_id", "utility_bill", "bank_statement",
               "rent_agreement", "certificate_incorporation", "dba", "tax_registration",
               "sof_declaration", "unknown"]
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["document_type", "confidence"]
}`

const ocrSchema = `{
  "type": "object",
  "properties": {
    "language": {"type": "string", "minLength": 2},
    "raw_text": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["text", "confidence"]
      }
    }
  },
  "required": ["language", "raw_text", "confidence"]
}`

const translationSchema = `{
  "type": "object",
  "properties": {
    "text": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["text", "confidence"]
}`

const extractionSchema = `{
  "type": "object",
  "properties": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "value": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["name", "value", "confidence"]
      }
    }
  },
  "required": ["fields"]
}`

const reasoningSchema = `{
  "type": "object",
  "properties": {
    "discrepancies": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "expected": {"type": ["string", "null"]},
          "received": {"type": ["string", "null"]},
          "severity": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]},
          "explanation": {"type": "string"},
          "resolution_required": {"type": "object"}
        },
        "required": ["field", "severity", "explanation"]
      }
    },
    "overall_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "summary": {"type": "string"}
  },
  "required": ["discrepancies", "overall_confidence", "summary"]
}`
