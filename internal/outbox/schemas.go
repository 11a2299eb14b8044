package outbox

const activityImportedSchema = `{
  "type": "object",
  "title": "ActivityImported",
  "properties": {
    "activity_id": {"type": "string"},
    "sport": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "distance_km": {"type": "number"},
    "duration_sec": {"type": "number"},
    "source": {"type": "string"},
    "data_kind": {"type": "string"}
  },
  "required": ["activity_id", "sport", "started_at", "distance_km", "duration_sec", "source", "data_kind"],
  "additionalProperties": false
}`

const activityAnalyzedSchema = `{
  "type": "object",
  "title": "ActivityAnalyzed",
  "properties": {
    "activity_id": {"type": "string"},
    "category": {"type": "string"},
    "tendency": {"type": "string"},
    "is_long": {"type": "boolean"},
    "data_kind": {"type": "string"},
    "interval_count": {"type": "integer"},
    "analyzed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "is_long", "data_kind", "interval_count", "analyzed_at"],
  "additionalProperties": false
}`
