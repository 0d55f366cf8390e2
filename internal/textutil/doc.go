// Package textutil provides Unicode helpers shared by query construction and
// subtitle parsing.
package textutil
