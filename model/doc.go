// Package model defines the shared data types of the vektor engine: records,
// metadata, and the result shapes returned by upsert and search operations.
package model
