package convert

// remix converts interleaved float32 frames from srcChannels to dstChannels
// per spec.md §4.2 step 2. Layout assumed for >=3-channel sources follows
// common surround convention: 0=front-L, 1=front-R, 2=center, 3=LFE,
// 4=rear-L, 5=rear-R (channels beyond 5 are ignored by the N->stereo rule
// and zeroed by the stereo->N rule).
func remix(src []float32, srcChannels, dstChannels int) []float32 {
	if srcChannels == dstChannels {
		return src
	}
	frames := len(src) / srcChannels
	out := make([]float32, frames*dstChannels)

	switch {
	case srcChannels == 1 && dstChannels == 2:
		for i := 0; i < frames; i++ {
			v := src[i]
			out[i*2] = v
			out[i*2+1] = v
		}
	case srcChannels == 2 && dstChannels == 1:
		for i := 0; i < frames; i++ {
			l, r := src[i*2], src[i*2+1]
			out[i] = (l + r) / 2
		}
	case srcChannels == 2 && dstChannels >= 3:
		for i := 0; i < frames; i++ {
			o := i * dstChannels
			out[o] = src[i*2]
			out[o+1] = src[i*2+1]
			// remaining channels left zero
		}
	case srcChannels >= 3 && dstChannels == 2:
		for i := 0; i < frames; i++ {
			s := i * srcChannels
			fl, fr := src[s], src[s+1]
			var center, rearL, rearR float32
			if srcChannels > 2 {
				center = src[s+2]
			}
			if srcChannels > 4 {
				rearL = src[s+4]
			}
			if srcChannels > 5 {
				rearR = src[s+5]
			}
			l := fl + 0.707*center + 0.5*rearL
			r := fr + 0.707*center + 0.5*rearR
			out[i*2] = clamp(l)
			out[i*2+1] = clamp(r)
		}
	default:
		// Truncate or zero-pad: copy the overlapping channel range.
		n := srcChannels
		if dstChannels < n {
			n = dstChannels
		}
		for i := 0; i < frames; i++ {
			so := i * srcChannels
			do := i * dstChannels
			copy(out[do:do+n], src[so:so+n])
		}
	}
	return out
}
