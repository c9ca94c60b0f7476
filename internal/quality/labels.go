package quality

// ResolutionLabel names the capture resolution class shown next to the preview
func ResolutionLabel(width, height int) string {
	short := min(width, height)
	switch {
	case short >= 2160:
		return "4K"
	case short >= 1080:
		return "Full HD"
	case short >= 720:
		return "HD"
	case short > 0:
		return "SD"
	default:
		return "Unknown"
	}
}

// Level buckets a clarity score for overlay coloring
func Level(clarity int) string {
	switch {
	case clarity >= 75:
		return "good"
	case clarity >= 50:
		return "fair"
	default:
		return "poor"
	}
}
