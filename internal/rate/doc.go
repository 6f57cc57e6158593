// Package rate implements fixed-window request counting per caller and
// operation class. Windows are aligned to wall-clock boundaries of the
// configured length, so every caller's counter resets at the same instant.
package rate
