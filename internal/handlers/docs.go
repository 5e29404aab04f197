package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func pathParam(name, description string) object {
	return object{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      object{"type": "string"},
	}
}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func paginated(item string) object {
	return object{
		"type": "object",
		"properties": object{
			"data":        object{"type": "array", "items": ref(item)},
			"total":       object{"type": "integer"},
			"page":        object{"type": "integer"},
			"limit":       object{"type": "integer"},
			"total_pages": object{"type": "integer"},
		},
	}
}

func getOperation(summary, description string, params []object, okSchema object, notFound bool) object {
	responses := object{
		"200": object{"description": "Successful response", "content": jsonContent(okSchema)},
		"400": object{"description": "Invalid query parameters", "content": jsonContent(ref("Error"))},
		"500": object{"description": "Internal error", "content": jsonContent(ref("Error"))},
	}
	if notFound {
		responses["404"] = object{"description": "Resource not found", "content": jsonContent(ref("Error"))}
	}

	op := object{
		"summary":     summary,
		"description": description,
		"responses":   responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return object{"get": op}
}

var (
	pageParam  = queryParam("page", "Page number (default: 1)", object{"type": "integer", "default": 1})
	limitParam = queryParam("limit", "Records per page (default: 100, max: 1000)", object{"type": "integer", "default": 100})
	startParam = queryParam("start", "Inclusive lower bound (YYYY-MM-DD or RFC3339)", object{"type": "string"})
	endParam   = queryParam("end", "Inclusive upper bound (YYYY-MM-DD or RFC3339)", object{"type": "string"})
	locParam   = queryParam("location_id", "Filter by location ID", object{"type": "string"})
)

func nullableNumber() object {
	return object{"type": "number", "nullable": true}
}

func timestamp() object {
	return object{"type": "string", "format": "date-time"}
}

func schemas() object {
	pollutants := object{
		"pm25_ugm3": nullableNumber(),
		"pm10_ugm3": nullableNumber(),
		"no2_ppm":   nullableNumber(),
		"o3_ppm":    nullableNumber(),
		"so2_ppm":   nullableNumber(),
		"co_ppm":    nullableNumber(),
	}

	segment := object{
		"segment_id":              object{"type": "string"},
		"location_id":             object{"type": "string"},
		"segments_num":            object{"type": "integer"},
		"segment_start":           timestamp(),
		"segment_end":             timestamp(),
		"segment_total_hours":     object{"type": "integer"},
		"segment_perfect_hours":   object{"type": "integer"},
		"segment_perfect_density": nullableNumber(),
		"segment_tier":            object{"type": "string", "enum": []string{"gold", "silver", "bronze"}},
		"segments_total":          object{"type": "integer"},
	}

	trainingRow := object{
		"location_id":        object{"type": "string"},
		"datetimeto_utc":     timestamp(),
		"hours_since_last":   object{"type": "integer", "nullable": true},
		"concurrent_sensors": object{"type": "integer"},
		"is_new_segment":     object{"type": "integer", "enum": []int{0, 1}},
	}
	for k, v := range pollutants {
		trainingRow[k] = v
	}
	for _, k := range []string{"segment_id", "segment_start", "segment_end", "segment_perfect_hours",
		"segment_total_hours", "segment_perfect_density", "segment_tier", "segments_num", "segments_total"} {
		trainingRow[k] = segment[k]
	}

	summary := object{
		"segments":         object{"type": "integer"},
		"retained_rows":    object{"type": "integer"},
		"tiers":            object{"type": "object", "additionalProperties": object{"type": "integer"}},
		"mean_density":     nullableNumber(),
		"stddev_density":   nullableNumber(),
		"mean_total_hours": nullableNumber(),
	}

	return object{
		"Error": object{
			"type": "object",
			"properties": object{
				"error":   object{"type": "string"},
				"message": object{"type": "string"},
				"code":    object{"type": "integer"},
			},
		},
		"Location": object{
			"type": "object",
			"properties": object{
				"id":                    object{"type": "string"},
				"name":                  object{"type": "string", "nullable": true},
				"timezone":              object{"type": "string", "nullable": true},
				"is_mobile":             object{"type": "boolean"},
				"is_monitor":            object{"type": "boolean"},
				"coordinates_latitude":  nullableNumber(),
				"coordinates_longitude": nullableNumber(),
				"country_name":          object{"type": "string", "nullable": true},
				"provider_name":         object{"type": "string", "nullable": true},
			},
		},
		"Segment":     object{"type": "object", "properties": segment},
		"TrainingRow": object{"type": "object", "properties": trainingRow},
		"Weather": object{
			"type": "object",
			"properties": object{
				"location_id":          object{"type": "string"},
				"datetimeto_utc":       timestamp(),
				"temperature_2m":       nullableNumber(),
				"relative_humidity_2m": nullableNumber(),
				"dew_point_2m":         nullableNumber(),
				"precipitation":        nullableNumber(),
				"pressure_msl":         nullableNumber(),
				"cloud_cover":          nullableNumber(),
				"wind_speed_10m":       nullableNumber(),
				"wind_direction_10m":   nullableNumber(),
			},
		},
		"Summary": object{"type": "object", "properties": summary},
		"Run": object{
			"type": "object",
			"properties": object{
				"run_id":              object{"type": "string", "format": "uuid"},
				"started_at":          timestamp(),
				"finished_at":         timestamp(),
				"analysis_start":      timestamp(),
				"measurements_read":   object{"type": "integer"},
				"locations_total":     object{"type": "integer"},
				"locations_segmented": object{"type": "integer"},
				"grid_rows":           object{"type": "integer"},
				"retained_rows":       object{"type": "integer"},
				"segments_total":      object{"type": "integer"},
				"gold_segments":       object{"type": "integer"},
				"silver_segments":     object{"type": "integer"},
				"bronze_segments":     object{"type": "integer"},
				"mean_density":        nullableNumber(),
				"stddev_density":      nullableNumber(),
				"mean_total_hours":    nullableNumber(),
			},
		},
	}
}

// OpenAPIDocument builds the OpenAPI 3.0 description of the API
func OpenAPIDocument() object {
	segmentRows := paginated("TrainingRow")
	segmentRows["properties"].(object)["segment"] = ref("Segment")

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Air Quality Segmentation API",
			"description": "Perfect-hour anchored, quality tiered segments of hourly multi-sensor air quality data",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/locations": getOperation(
				"List locations",
				"Monitoring locations with pagination",
				[]object{pageParam, limitParam},
				paginated("Location"), false),
			"/api/locations/{location_id}/summary": getOperation(
				"Summarize a location",
				"Tier counts and density statistics over the stored segments of one location",
				[]object{pathParam("location_id", "Location ID")},
				object{
					"type": "object",
					"properties": object{
						"location": ref("Location"),
						"summary":  ref("Summary"),
					},
				}, true),
			"/api/segments": getOperation(
				"List segments",
				"Segments of the latest run with filtering and pagination",
				[]object{
					locParam,
					queryParam("tier", "Filter by tier", object{"type": "string", "enum": []string{"gold", "silver", "bronze"}}),
					queryParam("min_hours", "Minimum segment_total_hours", object{"type": "integer"}),
					pageParam, limitParam,
				},
				paginated("Segment"), false),
			"/api/segments/{segment_id}/rows": getOperation(
				"Get segment rows",
				"Training rows belonging to one segment",
				[]object{pathParam("segment_id", "Segment ID, e.g. 101_S2"), pageParam, limitParam},
				segmentRows, true),
			"/api/training-rows": getOperation(
				"List training rows",
				"Retained (location, hour) rows annotated with their segment",
				[]object{
					locParam,
					queryParam("segment_id", "Filter by segment ID", object{"type": "string"}),
					startParam, endParam, pageParam, limitParam,
				},
				paginated("TrainingRow"), false),
			"/api/weather": getOperation(
				"List weather covariates",
				"Hourly weather observations per location",
				[]object{locParam, startParam, endParam, pageParam, limitParam},
				paginated("Weather"), false),
			"/api/runs/latest": getOperation(
				"Latest run",
				"Report of the most recent segmentation run",
				nil,
				ref("Run"), true),
			"/health": object{
				"get": object{
					"summary":     "Health check",
					"description": "Check that the API and its store are reachable",
					"responses": object{
						"200": object{"description": "API is healthy"},
						"503": object{"description": "Store unreachable"},
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": object{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{"schemas": schemas()},
	}
}

// OpenAPISpec serves the OpenAPI document
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OpenAPIDocument())
}
